package pipeline

import (
	"bytes"
	"net/http"
)

// loginMarkers identify the device's login page inside a response body. The
// device signals "not authenticated" through content, not status codes, so
// this is a best-effort heuristic; when a firmware update changes the
// markup, this table is the only thing that needs to move.
var loginMarkers = [][]byte{
	[]byte(`action="check.jst"`),
	[]byte(`id="login-form"`),
	[]byte(`please login to manage your gateway`),
}

// looksUnauthenticated reports whether the response indicates a missing or
// expired session.
func looksUnauthenticated(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status >= http.StatusInternalServerError {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range loginMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classify maps a response to one of the pipeline outcomes. Unauthenticated
// is checked first: the device happily serves its login page with a 200.
func classify(status int, body []byte) string {
	switch {
	case looksUnauthenticated(status, body):
		return outcomeUnauthenticated
	case status >= http.StatusInternalServerError:
		return outcomeServer
	case status >= http.StatusBadRequest:
		return outcomeClient
	default:
		return outcomeOK
	}
}
