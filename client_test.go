package gateway_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/ndavat/gateway-admin"
	"github.com/ndavat/gateway-admin/store"
)

const (
	adminUser = "admin"
	adminPass = "hunter2"
)

// fakeAdmin mimics the gateway's admin surface: cookie-session login over a
// redirect, protected pages that answer with the login form when the cookie
// is missing or stale, and form handlers for block and reboot.
type fakeAdmin struct {
	mu      sync.Mutex
	logins  int
	token   string
	seq     int
	blocked map[string]bool
	reboots int

	// rebootKills makes the reboot handler drop the connection mid-response,
	// the way the real device does as it goes down.
	rebootKills bool

	srv *httptest.Server
}

func newFakeAdmin(t *testing.T) *fakeAdmin {
	t.Helper()

	f := &fakeAdmin{blocked: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/check.jst", f.handleLogin)
	mux.HandleFunc("/at_a_glance.jst", f.protected(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1>At a Glance</h1></body></html>`)
	}))
	mux.HandleFunc("/connected_devices_computers.jst", f.protected(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, inventoryMarkup)
	}))
	mux.HandleFunc("/managed_devices.jst", f.protected(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.blocked[r.PostFormValue("mac_address")] = r.PostFormValue("blocked") == "true"
		f.mu.Unlock()
	}))
	mux.HandleFunc("/restore_reboot.jst", f.protected(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.reboots++
		kill := f.rebootKills
		f.mu.Unlock()
		if kill {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
		}
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAdmin) addr() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeAdmin) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// expireSession invalidates the current token server-side, as the firmware
// does when its single session slot is taken over.
func (f *fakeAdmin) expireSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
}

func (f *fakeAdmin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		f.loginPage(w)
		return
	}
	if err := r.ParseForm(); err != nil ||
		r.PostFormValue("username") != adminUser || r.PostFormValue("password") != adminPass {
		f.loginPage(w)
		return
	}

	f.mu.Lock()
	f.logins++
	f.seq++
	f.token = fmt.Sprintf("session%04d", f.seq)
	token := f.token
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "DUKSID", Value: token, Path: "/"})
	w.Header().Set("Location", "/at_a_glance.jst")
	w.WriteHeader(http.StatusFound)
}

func (f *fakeAdmin) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("DUKSID")
		f.mu.Lock()
		valid := err == nil && f.token != "" && c.Value == f.token
		f.mu.Unlock()
		if !valid {
			f.loginPage(w)
			return
		}
		next(w, r)
	}
}

func (f *fakeAdmin) loginPage(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<html><body>
<p>Please login to manage your gateway</p>
<form id="login-form" action="check.jst" method="post"></form>
</body></html>`)
}

const inventoryMarkup = `<html><body><table id="online-private">
<tr><th id="host-name">Host Name</th><th id="connection-type">Connection Type</th></tr>
<tr>
<td headers="host-name">kitchen-tv<div><dl>
<dt>MAC Address</dt><dd>aa:bb:cc:dd:ee:ff</dd>
<dt>IPV4 Address</dt><dd>10.0.0.42</dd>
</dl></div></td>
<td headers="connection-type">Wi-Fi 802.11ac</td>
</tr>
<tr>
<td headers="host-name">desk-pc<div><dl>
<dt>MAC Address</dt><dd>00:11:22:33:44:55</dd>
<dt>IPV4 Address</dt><dd>10.0.0.10</dd>
</dl></div></td>
<td headers="connection-type">Ethernet</td>
</tr>
</table></body></html>`

func newClient(t *testing.T, admin *fakeAdmin, st store.Store) *gateway.Client {
	t.Helper()
	c, err := gateway.New(gateway.Config{
		Username:      adminUser,
		Password:      adminPass,
		Store:         st,
		Candidates:    []string{admin.addr()},
		GatewayLookup: func() string { return "" },
		ProbeTimeout:  500 * time.Millisecond,
		BackoffBase:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := gateway.New(gateway.Config{Username: "admin"})
	require.Error(t, err)

	_, err = gateway.New(gateway.Config{Password: "secret"})
	require.Error(t, err)
}

func TestClientFetchDeviceInventory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	c := newClient(t, admin, store.NewMemory())

	// No explicit Login: the first authenticated fetch logs in on demand.
	devices, err := c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, 1, admin.loginCount())

	assert.Equal(t, "desk-pc", devices[0].Hostname)
	assert.Equal(t, "kitchen-tv", devices[1].Hostname)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", devices[1].MAC)
	assert.Equal(t, "10.0.0.42", devices[1].IP)

	// Second fetch rides the established session.
	_, err = c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, admin.loginCount())
}

func TestClientReauthenticatesOnExpiredSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	c := newClient(t, admin, store.NewMemory())

	_, err := c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, admin.loginCount())

	// The gateway silently drops the session; the next fetch hits the login
	// page, re-authenticates once, and replays transparently.
	admin.expireSession()

	devices, err := c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, 2, admin.loginCount())
}

func TestClientLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	admin := newFakeAdmin(t)
	c, err := gateway.New(gateway.Config{
		Username:      adminUser,
		Password:      "wrong",
		Candidates:    []string{admin.addr()},
		GatewayLookup: func() string { return "" },
		ProbeTimeout:  500 * time.Millisecond,
		BackoffBase:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrAuthenticationFailed)
}

func TestClientSessionSharedAcrossClients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	st := store.NewMemory()

	first := newClient(t, admin, st)
	_, err := first.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, admin.loginCount())

	// A second client over the same store restores and verifies the
	// persisted session instead of logging in again.
	second := newClient(t, admin, st)
	_, err = second.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, admin.loginCount())
}

func TestClientDeviceLabels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	c := newClient(t, admin, store.NewMemory())

	// Labels accept any MAC spelling and are stored under the canonical one.
	require.NoError(t, c.SetDeviceLabel(ctx, "aa-bb-cc-dd-ee-ff", "Kitchen TV"))

	labels, err := c.DeviceLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AA:BB:CC:DD:EE:FF": "Kitchen TV"}, labels)

	devices, err := c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "Kitchen TV", devices[1].CustomName)
	assert.Equal(t, "desk-pc", devices[0].CustomName, "unlabeled device falls back to hostname")

	// An empty name removes the label.
	require.NoError(t, c.SetDeviceLabel(ctx, "AA:BB:CC:DD:EE:FF", ""))
	labels, err = c.DeviceLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, labels)

	err = c.SetDeviceLabel(ctx, "not-a-mac", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
}

func TestClientBlockUnblock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	c := newClient(t, admin, store.NewMemory())

	require.NoError(t, c.BlockDevice(ctx, "aa:bb:cc:dd:ee:ff"))
	admin.mu.Lock()
	assert.True(t, admin.blocked["AA:BB:CC:DD:EE:FF"])
	admin.mu.Unlock()

	require.NoError(t, c.UnblockDevice(ctx, "AA:BB:CC:DD:EE:FF"))
	admin.mu.Lock()
	assert.False(t, admin.blocked["AA:BB:CC:DD:EE:FF"])
	admin.mu.Unlock()

	err := c.BlockDevice(ctx, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
}

func TestClientReboot(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		admin := newFakeAdmin(t)
		c := newClient(t, admin, store.NewMemory())

		require.NoError(t, c.Reboot(ctx))
		admin.mu.Lock()
		assert.Equal(t, 1, admin.reboots)
		admin.mu.Unlock()
	})

	t.Run("connection dropped mid-reboot counts as accepted", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		admin := newFakeAdmin(t)
		admin.rebootKills = true
		c := newClient(t, admin, store.NewMemory())

		require.NoError(t, c.Reboot(ctx))
		admin.mu.Lock()
		assert.GreaterOrEqual(t, admin.reboots, 1)
		admin.mu.Unlock()
	})

	t.Run("unreachable gateway is an error, not a silent success", func(t *testing.T) {
		t.Parallel()

		// A dead address means nothing was ever dispatched; the failure must
		// surface instead of being mistaken for the device going down.
		dead := httptest.NewServer(http.NewServeMux())
		deadAddr := strings.TrimPrefix(dead.URL, "http://")
		dead.Close()

		c, err := gateway.New(gateway.Config{
			Username:      adminUser,
			Password:      adminPass,
			Candidates:    []string{deadAddr},
			GatewayLookup: func() string { return "" },
			ProbeTimeout:  500 * time.Millisecond,
			BackoffBase:   10 * time.Millisecond,
		})
		require.NoError(t, err)

		err = c.Reboot(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, gateway.ErrTransientNetwork)
	})
}

func TestClientDiscoverAndForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	st := store.NewMemory()
	c := newClient(t, admin, st)

	ep, err := c.DiscoverEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin.addr(), ep.Address)

	persisted, ok, err := st.Get(ctx, store.KeyGatewayAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, admin.addr(), persisted)

	require.NoError(t, c.ForgetEndpoint(ctx))
	_, ok, err = st.Get(ctx, store.KeyGatewayAddress)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientInvalidateSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := newFakeAdmin(t)
	st := store.NewMemory()
	c := newClient(t, admin, st)

	s, err := c.Login(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)

	require.NoError(t, c.InvalidateSession(ctx))
	_, ok, err := st.Get(ctx, store.KeySession)
	require.NoError(t, err)
	assert.False(t, ok)

	// The next authenticated call logs in again.
	_, err = c.FetchDeviceInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, admin.loginCount())
}
