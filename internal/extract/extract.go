// Package extract converts the gateway's connected-devices markup into
// validated device records. Field extractors are small (node) -> (value, ok)
// functions composed in a fixed order, so a malformed fragment loses one
// field rather than the whole record. Rows missing their identity (MAC and
// hostname) are dropped and logged, never raised.
package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/ndavat/gateway-admin/model"
	"github.com/ndavat/gateway-admin/observability"
)

// inventoryContainerID is the primary structural marker for the device table
// in the firmware dialect this client targets.
const inventoryContainerID = "online-private"

// Detail-block field labels, matched by prefix against the collected field
// text. Most specific first so "Local Link IPV6 Address" is never eaten by
// the plain IPv6 label.
var detailLabels = []string{
	"Local Link IPV6 Address",
	"IPV6 Address",
	"IPV4 Address",
	"MAC Address",
	"Comments",
}

// Devices extracts all valid device records from inventory markup, merging
// user labels (keyed by canonical MAC) into CustomName. The result is sorted
// by hostname, case-insensitively.
//
// It fails with ErrMalformedResponse only when the inventory structure is
// missing or empty; individually malformed rows are logged and dropped.
func Devices(markup string, labels map[string]string, logger observability.Logger) ([]model.DeviceRecord, error) {
	if logger == nil {
		logger = observability.NoopLogger()
	}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, errors.Mark(
			errors.Wrap(err, "inventory markup unparseable"),
			model.ErrMalformedResponse)
	}

	container := findContainer(doc)
	if container == nil {
		return nil, errors.Wrap(model.ErrMalformedResponse,
			"inventory container not found in markup")
	}

	rows := dataRows(container)
	if len(rows) == 0 {
		return nil, errors.Wrap(model.ErrMalformedResponse,
			"inventory container has no device rows")
	}

	now := time.Now()
	records := make([]model.DeviceRecord, 0, len(rows))
	discarded := 0

	for _, row := range rows {
		rec, ok := deviceFromRow(row, now)
		if !ok {
			discarded++
			continue
		}
		rec.CustomName = resolveCustomName(rec, labels)
		records = append(records, rec)
	}

	if discarded > 0 {
		logger.Warn("discarded malformed inventory rows",
			observability.Field{Key: "discarded", Value: discarded},
			observability.Field{Key: "kept", Value: len(records)},
		)
	}

	sort.Slice(records, func(i, j int) bool {
		return strings.ToLower(records[i].Hostname) < strings.ToLower(records[j].Hostname)
	})
	return records, nil
}

// findContainer locates the inventory table: by id first, then a best-effort
// search for any table whose header mentions a host-name column.
func findContainer(doc *html.Node) *html.Node {
	if n := findByID(doc, inventoryContainerID); n != nil {
		return n
	}

	var fallback *html.Node
	walk(doc, func(n *html.Node) bool {
		if fallback != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "table" {
			header := strings.ToLower(collectText(n))
			if strings.Contains(header, "host name") || strings.Contains(header, "hostname") {
				fallback = n
				return false
			}
		}
		return true
	})
	return fallback
}

// dataRows returns the candidate device rows: tr elements that carry td
// cells. Header rows (th-only) and decoration rows are excluded.
func dataRows(container *html.Node) []*html.Node {
	var rows []*html.Node
	walk(container, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return true
		}
		hasTD := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "td" {
				hasTD = true
				break
			}
		}
		if hasTD {
			rows = append(rows, n)
		}
		return false // no nested tables inside a row
	})
	return rows
}

// deviceFromRow runs the field extractors over one row and validates the
// result. Returns false when the row must be discarded.
func deviceFromRow(row *html.Node, now time.Time) (model.DeviceRecord, bool) {
	hostname, _ := hostnameCell(row)
	details := detailFields(row)

	rawMAC := details["MAC Address"]
	if rawMAC == "" && hostname == "" {
		return model.DeviceRecord{}, false
	}

	mac, err := model.NormalizeMAC(rawMAC)
	if err != nil {
		// MAC is the join key for labels and block operations; a record
		// with a malformed key must never be emitted.
		return model.DeviceRecord{}, false
	}

	connType, band, protocol := parseConnection(cellByHeader(row, "connection-type"))

	rec := model.DeviceRecord{
		MAC:            mac,
		Hostname:       hostname,
		ConnectionType: connType,
		Band:           band,
		Protocol:       protocol,
		DHCPType:       parseDHCP(cellByHeader(row, "dhcp-or-reserved")),
		SignalStrength: parseSignal(cellByHeader(row, "signal-strength")),
		IPv6:           details["IPV6 Address"],
		LocalLinkIPv6:  details["Local Link IPV6 Address"],
		Comments:       details["Comments"],
		IsBlocked:      parseBlocked(cellByHeader(row, "blocked")),
		IsOnline:       true,
		LastSeen:       now,
	}

	rec.IP = details["IPV4 Address"]
	if rec.IP == "" {
		rec.IP = placeholderIP(mac)
	}

	return rec, true
}

// resolveCustomName applies the priority order: user label, router comment,
// hostname.
func resolveCustomName(rec model.DeviceRecord, labels map[string]string) string {
	if name, ok := labels[rec.MAC]; ok && name != "" {
		return name
	}
	if rec.Comments != "" {
		return rec.Comments
	}
	return rec.Hostname
}
