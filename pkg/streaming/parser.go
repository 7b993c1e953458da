package streaming

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame is one (event name, payload) unit extracted from the wire. Frames
// are ephemeral: they exist only between the transport and the session's
// classification step.
type Frame struct {
	Event   string
	Payload string
}

// lineParser converts a sequence of text lines in the server-sent-events
// framing into Frames. It keeps two accumulators, the current event name
// and the current payload; a blank line or a comment line resets both.
//
// A "data:" line dispatches immediately with whatever event name is
// currently accumulated. The server emits exactly one data line per event,
// so there is no coalescing of multi-line data blocks; a producer that
// split one event across several data lines would yield one Frame per line.
type lineParser struct {
	event string
}

// Feed processes one line, without its trailing line ending. It returns a
// Frame and true when the line completes a frame.
func (p *lineParser) Feed(line string) (Frame, bool) {
	switch {
	case line == "" || strings.HasPrefix(line, ":"):
		// Blank separator or keep-alive comment. Reset.
		p.event = ""
	case strings.HasPrefix(line, "event:"):
		p.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data: "):
		return Frame{Event: p.event, Payload: strings.TrimPrefix(line, "data: ")}, true
	case strings.HasPrefix(line, "data:"):
		return Frame{Event: p.event, Payload: strings.TrimPrefix(line, "data:")}, true
	}
	// Other field lines (id:, retry:, unknown) are ignored.
	return Frame{}, false
}

// decodeSocketFrame parses one whole websocket message into a Frame. The
// wire format is a JSON envelope {"event": "...", "payload": "..."} whose
// payload string is itself JSON, decoded again during classification.
func decodeSocketFrame(message []byte) (Frame, error) {
	var envelope struct {
		Event   string `json:"event"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return Frame{}, fmt.Errorf("malformed socket frame: %w", err)
	}
	return Frame{Event: envelope.Event, Payload: envelope.Payload}, nil
}
