package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// maxSSELine bounds a single server-sent event line.
const maxSSELine = 1024 * 1024

// serverSentEventScanner reads the data payloads of a Server-Sent Events stream.
type serverSentEventScanner struct {
	scanner *bufio.Scanner
	data    string
}

// newServerSentEventScanner creates a new SSE scanner.
func newServerSentEventScanner(r io.Reader) *serverSentEventScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &serverSentEventScanner{scanner: s}
}

// Scan advances to the next "data:" line, skipping event names, comments and
// blank separators. It returns false at end of stream or on "[DONE]".
func (s *serverSentEventScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return false
		}
		if data == "" {
			continue
		}
		s.data = data
		return true
	}
	return false
}

// Data returns the payload of the last scanned data line.
func (s *serverSentEventScanner) Data() string {
	return s.data
}

// Err returns the first non-EOF read error.
func (s *serverSentEventScanner) Err() error {
	return s.scanner.Err()
}

// apiErrorMessage extracts "type: message" from an Anthropic error body,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var env struct {
		Error *claudeAPIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Type + ": " + env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// errorTypeStatus maps streamed Anthropic error types onto the HTTP status
// the same condition would have produced before the stream opened.
func errorTypeStatus(errType string) int {
	switch errType {
	case "authentication_error", "permission_error":
		return 401
	case "rate_limit_error":
		return 429
	case "overloaded_error":
		return 529
	case "invalid_request_error":
		return 400
	default:
		return 500
	}
}
