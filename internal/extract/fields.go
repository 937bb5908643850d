package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Node helpers. Each extractor is pure: given a node it either yields a
// value or reports absence, and never inspects anything outside its subtree.

// walk visits n and its descendants depth-first; visit returning false
// prunes the subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// collectText returns the whitespace-collapsed text content of a subtree.
func collectText(n *html.Node) string {
	var parts []string
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
		return true
	})
	return strings.Join(parts, " ")
}

// cellByHeader returns the text of the row's td whose headers attribute
// names the given column, or "".
func cellByHeader(row *html.Node, header string) string {
	var text string
	walk(row, func(n *html.Node) bool {
		if text != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "td" &&
			strings.Contains(attr(n, "headers"), header) {
			text = collectText(n)
			return false
		}
		return true
	})
	return text
}

// hostnameCell returns the hostname from the host-name td, excluding any
// nested details block (div/dl subtrees hold the per-device detail fields,
// not the name).
func hostnameCell(row *html.Node) (string, bool) {
	var cell *html.Node
	walk(row, func(n *html.Node) bool {
		if cell != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "td" &&
			strings.Contains(attr(n, "headers"), "host-name") {
			cell = n
			return false
		}
		return true
	})
	if cell == nil {
		return "", false
	}

	var parts []string
	walk(cell, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "dl") {
			return false
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		return true
	})
	name := strings.Join(parts, " ")
	return name, name != ""
}

// detailFields collects the row's detail sub-block into a label->value map
// using label-prefix matching: a field string starts with a known label and
// the value is the remainder. Handles both dt/dd pairs and flat "Label:
// value" fragments (li, span, leaf div).
func detailFields(row *html.Node) map[string]string {
	fields := make(map[string]string)
	var pendingLabel string

	assign := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		for _, label := range detailLabels {
			if !strings.HasPrefix(text, label) {
				continue
			}
			if _, dup := fields[label]; dup {
				return
			}
			value := strings.TrimSpace(strings.TrimPrefix(text, label))
			value = strings.TrimSpace(strings.TrimPrefix(value, ":"))
			fields[label] = value
			return
		}
	}

	walk(row, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "dt":
			pendingLabel = collectText(n)
			return false
		case "dd":
			if pendingLabel != "" {
				assign(pendingLabel + " " + collectText(n))
				pendingLabel = ""
			}
			return false
		case "li", "span":
			assign(collectText(n))
			return false
		}
		return true
	})
	return fields
}
