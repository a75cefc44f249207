package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	Type string
	Data string
}

// Scanner reads server-sent events from a stream. Events end at a blank
// line; "data:" lines are joined with newlines, comment lines and unknown
// fields are skipped.
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at end of stream or on
// a read error; Err tells them apart.
func (s *Scanner) Next() bool {
	s.current = Event{}
	if s.err != nil {
		return false
	}

	var data []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			eventType = value
		}
	}
}

// Event returns the event parsed by the last successful Next.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the read error that stopped the scanner, or nil on clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
