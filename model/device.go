// Package model defines the domain types shared across the gateway client:
// endpoints, credentials, sessions, device records, and the error taxonomy.
package model

import "time"

// ConnectionType describes how a device is attached to the gateway.
type ConnectionType string

const (
	ConnectionWiFi     ConnectionType = "WiFi"
	ConnectionEthernet ConnectionType = "Ethernet"
	ConnectionUnknown  ConnectionType = "Unknown"
)

// Band is the radio band a wireless device is associated on.
type Band string

const (
	Band2_4GHz  Band = "2.4GHz"
	Band5GHz    Band = "5GHz"
	BandUnknown Band = "Unknown"
)

// Protocol is the Wi-Fi generation negotiated by a wireless device.
type Protocol string

const (
	ProtocolWiFi4   Protocol = "Wi-Fi4"
	ProtocolWiFi5   Protocol = "Wi-Fi5"
	ProtocolWiFi6   Protocol = "Wi-Fi6"
	ProtocolUnknown Protocol = "Unknown"
)

// DHCPType describes how a device obtained its lease.
type DHCPType string

const (
	DHCPDynamic  DHCPType = "DHCP"
	DHCPReserved DHCPType = "Reserved"
)

// DeviceRecord is the validated, canonical representation of one entry from
// the gateway's connected-devices inventory. MAC is the stable identity key
// and is always in canonical colon-separated uppercase hex form.
//
// Records are rebuilt from scratch on every inventory fetch; a fetch result
// is a full snapshot, not an incremental update.
type DeviceRecord struct {
	MAC            string         `json:"mac"`
	IP             string         `json:"ip"`
	Hostname       string         `json:"hostname"`
	ConnectionType ConnectionType `json:"connection_type"`
	Band           Band           `json:"band"`
	Protocol       Protocol       `json:"protocol"`
	DHCPType       DHCPType       `json:"dhcp_type"`

	// SignalStrength is in dBm; nil when the row carried no parseable value.
	SignalStrength *int `json:"signal_strength,omitempty"`

	IPv6          string `json:"ipv6,omitempty"`
	LocalLinkIPv6 string `json:"local_link_ipv6,omitempty"`
	Comments      string `json:"comments,omitempty"`

	// CustomName resolves, in priority order: user-assigned label, router
	// comment, hostname.
	CustomName string `json:"custom_name"`

	IsBlocked bool      `json:"is_blocked"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
}
