// Command gatewayctl exercises the gateway client from the command line:
// discover the device, list connected devices, label them, and block or
// unblock them.
//
// Usage:
//
//	gatewayctl [flags] discover
//	gatewayctl [flags] devices
//	gatewayctl [flags] label <mac> <name>
//	gatewayctl [flags] block <mac>
//	gatewayctl [flags] unblock <mac>
//	gatewayctl [flags] reboot
//	gatewayctl [flags] logout
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gateway "github.com/ndavat/gateway-admin"
	"github.com/ndavat/gateway-admin/observability"
	"github.com/ndavat/gateway-admin/store"
	"github.com/ndavat/gateway-admin/store/sqlitestore"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	username   = flag.String("username", os.Getenv("GATEWAY_USERNAME"), "Admin username (or GATEWAY_USERNAME)")
	password   = flag.String("password", os.Getenv("GATEWAY_PASSWORD"), "Admin password (or GATEWAY_PASSWORD)")
	dbPath     = flag.String("db", "", "SQLite file for persisted state (in-memory when empty)")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	timeout    = flag.Duration("timeout", 2*time.Minute, "Overall operation timeout")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg.merge(*username, *password, *dbPath, *logLevel)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.NewZerologLogger(os.Stderr, cfg.LogLevel)

	var st store.Store
	if cfg.DBPath != "" {
		sq, err := sqlitestore.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "store:", err)
			os.Exit(1)
		}
		defer sq.Close()
		st = sq
	}

	client, err := gateway.New(gateway.Config{
		Username: cfg.Username,
		Password: cfg.Password,
		Store:    st,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *gateway.Client, args []string) error {
	switch args[0] {
	case "discover":
		ep, err := client.DiscoverEndpoint(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ep.URL())
		return nil

	case "devices":
		devices, err := client.FetchDeviceInventory(ctx)
		if err != nil {
			return err
		}
		printDevices(devices)
		return nil

	case "label":
		if len(args) < 3 {
			return fmt.Errorf("usage: label <mac> <name>")
		}
		return client.SetDeviceLabel(ctx, args[1], args[2])

	case "block":
		if len(args) < 2 {
			return fmt.Errorf("usage: block <mac>")
		}
		return client.BlockDevice(ctx, args[1])

	case "unblock":
		if len(args) < 2 {
			return fmt.Errorf("usage: unblock <mac>")
		}
		return client.UnblockDevice(ctx, args[1])

	case "reboot":
		return client.Reboot(ctx)

	case "logout":
		return client.InvalidateSession(ctx)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printDevices(devices []gateway.DeviceRecord) {
	fmt.Printf("%-18s %-16s %-22s %-9s %-7s %-7s %s\n",
		"MAC", "IP", "NAME", "CONN", "BAND", "PROTO", "SIGNAL")
	for _, d := range devices {
		signal := "-"
		if d.SignalStrength != nil {
			signal = fmt.Sprintf("%d dBm", *d.SignalStrength)
		}
		name := d.CustomName
		if d.IsBlocked {
			name += " [blocked]"
		}
		fmt.Printf("%-18s %-16s %-22s %-9s %-7s %-7s %s\n",
			d.MAC, d.IP, name, d.ConnectionType, d.Band, d.Protocol, signal)
	}
}
