package executor

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// sseScanner splits a text/event-stream body into events. Comment lines and
// unknown fields are ignored; multi-line data is joined with newlines.
type sseScanner struct {
	scanner *bufio.Scanner
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return &sseScanner{scanner: scanner}
}

// Next returns the next event, or false at end of stream.
func (s *sseScanner) Next() (sseEvent, bool) {
	var ev sseEvent
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(data) > 0 || ev.Event != "" {
				ev.Data = strings.Join(data, "\n")
				return ev, true
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment
		}
	}
	s.err = s.scanner.Err()
	if len(data) > 0 || ev.Event != "" {
		ev.Data = strings.Join(data, "\n")
		return ev, true
	}
	return sseEvent{}, false
}

// Err reports a scan failure after Next returns false.
func (s *sseScanner) Err() error {
	return s.err
}
