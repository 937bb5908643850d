package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ndavat/gateway-admin/model"
)

// protocolKeywords is checked in order, most specific generation first, so a
// free-text cell mentioning both 802.11ax and 802.11n always classifies as
// Wi-Fi 6 regardless of text order.
var protocolKeywords = []struct {
	marker   string
	protocol model.Protocol
}{
	{"802.11ax", model.ProtocolWiFi6},
	{"wi-fi 6", model.ProtocolWiFi6},
	{"wifi 6", model.ProtocolWiFi6},
	{"802.11ac", model.ProtocolWiFi5},
	{"wi-fi 5", model.ProtocolWiFi5},
	{"wifi 5", model.ProtocolWiFi5},
	{"802.11n", model.ProtocolWiFi4},
	{"wi-fi 4", model.ProtocolWiFi4},
	{"wifi 4", model.ProtocolWiFi4},
}

var bandKeywords = []struct {
	marker string
	band   model.Band
}{
	{"5ghz", model.Band5GHz},
	{"5 ghz", model.Band5GHz},
	{"5g", model.Band5GHz},
	{"2.4ghz", model.Band2_4GHz},
	{"2.4 ghz", model.Band2_4GHz},
	{"2.4g", model.Band2_4GHz},
}

// parseConnection turns free-text connection-type markup into a typed
// {connection, band, protocol} triple.
func parseConnection(text string) (model.ConnectionType, model.Band, model.Protocol) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return model.ConnectionUnknown, model.BandUnknown, model.ProtocolUnknown
	}

	if strings.Contains(lower, "ethernet") || strings.Contains(lower, "wired") {
		return model.ConnectionEthernet, model.BandUnknown, model.ProtocolUnknown
	}

	protocol := model.ProtocolUnknown
	for _, kw := range protocolKeywords {
		if strings.Contains(lower, kw.marker) {
			protocol = kw.protocol
			break
		}
	}

	band := model.BandUnknown
	for _, kw := range bandKeywords {
		if strings.Contains(lower, kw.marker) {
			band = kw.band
			break
		}
	}
	if band == model.BandUnknown {
		// The dialect often names only the standard; 802.11ac is 5GHz-only
		// and 802.11n shows up on the 2.4GHz radio here. 802.11ax is dual
		// band, so it stays unknown without an explicit marker.
		switch protocol {
		case model.ProtocolWiFi5:
			band = model.Band5GHz
		case model.ProtocolWiFi4:
			band = model.Band2_4GHz
		}
	}

	conn := model.ConnectionUnknown
	if protocol != model.ProtocolUnknown || band != model.BandUnknown ||
		strings.Contains(lower, "wi-fi") || strings.Contains(lower, "wifi") ||
		strings.Contains(lower, "wireless") {
		conn = model.ConnectionWiFi
	}
	return conn, band, protocol
}

func parseDHCP(text string) model.DHCPType {
	if strings.Contains(strings.ToLower(text), "reserved") {
		return model.DHCPReserved
	}
	return model.DHCPDynamic
}

var signalPattern = regexp.MustCompile(`^(-\d+)(?:\s*dBm)?$`)

// parseSignal parses a "-NN" signal cell into dBm; nil when absent or not of
// that form.
func parseSignal(text string) *int {
	m := signalPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

func parseBlocked(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "blocked", "true", "yes":
		return true
	default:
		return false
	}
}

// placeholderIP derives a deterministic stand-in address from the MAC's last
// octet for rows that carry no IPv4 lease. It is a documented fallback, not
// a real lease.
func placeholderIP(canonicalMAC string) string {
	last := canonicalMAC[len(canonicalMAC)-2:]
	v, err := strconv.ParseUint(last, 16, 8)
	if err != nil {
		return "192.168.0.0"
	}
	return fmt.Sprintf("192.168.0.%d", v)
}
