// Package gateway is a resilient client for home network gateway devices
// that expose only an HTML admin interface. It locates the device on the
// local network, maintains an authenticated session against it, issues
// requests with retry and failure classification, and converts the
// connected-devices markup into validated, strongly-typed records.
//
// # Basic usage
//
//	client, err := gateway.New(gateway.Config{
//	    Username: "admin",
//	    Password: "password",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	devices, err := client.FetchDeviceInventory(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Printf("%s %s %s\n", d.MAC, d.IP, d.CustomName)
//	}
//
// Discovery, login, and retries all happen behind FetchDeviceInventory; the
// first call on a fresh client typically probes for the gateway, logs in,
// and persists both results for the next run.
//
// # Failure model
//
// Every operation fails with exactly one of the classified sentinel errors
// (ErrDiscoveryFailed, ErrAuthenticationFailed, ErrTransientNetwork,
// ErrUpstreamServer, ErrMalformedResponse, ErrInvalidRequest), matched with
// errors.Is. None of them is fatal: callers recover by retrying the whole
// operation, usually after fixing network or credential context.
package gateway
