package discovery

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const procNetRoute = "/proc/net/route"

// routeTableGateway returns the host's default-gateway IPv4 address from the
// kernel route table, or "" when none can be determined. Only Linux exposes
// /proc/net/route; on other platforms this is simply a strategy miss.
func routeTableGateway() string {
	f, err := os.Open(procNetRoute)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Iface Destination Gateway Flags ...
		if len(fields) < 3 {
			continue
		}
		if fields[1] != "00000000" {
			continue
		}
		if gw := parseHexIPv4(fields[2]); gw != "" {
			return gw
		}
	}
	return ""
}

// parseHexIPv4 decodes the little-endian hex address format used in
// /proc/net/route, e.g. "0100A8C0" -> "192.168.0.1".
func parseHexIPv4(s string) string {
	if len(s) != 8 {
		return ""
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || v == 0 {
		return ""
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
