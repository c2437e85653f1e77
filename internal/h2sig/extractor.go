package h2sig

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// A frame received from the client appears in the log as:
// "[id=1] [  7.801] recv WINDOW_UPDATE frame <length=4, flags=0x00, stream_id=0>"
var framePattern = regexp.MustCompile(`^\[id=(\d+)\].*recv ([A-Z_]+) frame.*stream_id=(\d+)`)

var (
	nivPattern          = regexp.MustCompile(`^\s*\(niv=(\d+)\)`)
	settingPattern      = regexp.MustCompile(`^\s*\[[A-Z_]+\(0x([0-9a-fA-F]+)\):(\d+)\]`)
	windowUpdatePattern = regexp.MustCompile(`^\s*\(window_size_increment=(\d+)\)`)
	priorityPattern     = regexp.MustCompile(`^\s*\(dep_stream_id=(\d+), weight=(\d+), exclusive=(\d+)\)`)
)

// MalformedTraceError reports a trace that violates the expected per-frame
// line grammar. Line is empty when the trace ended while more input was
// expected.
type MalformedTraceError struct {
	Line   string
	Reason string
}

func (e *MalformedTraceError) Error() string {
	if e.Line == "" {
		return "malformed trace: " + e.Reason
	}
	return fmt.Sprintf("malformed trace: %s in line %q", e.Reason, e.Line)
}

// traceParser walks the trace's lines with an explicit cursor. pending holds
// the lines seen since the last frame boundary: the log lines carrying a
// HEADERS frame's pseudo-headers come before the "recv HEADERS" line itself.
type traceParser struct {
	lines   []string
	pos     int
	pending []string
}

func (p *traceParser) next() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	line := p.lines[p.pos]
	p.pos++
	return line, true
}

// ExtractSignatures parses the receive log of an HTTP/2 reference server
// (nghttpd run with -v) and returns the signature of every client that
// appears in it, keyed by the numeric client id the server assigned.
//
// A client's extraction stops at its first HEADERS frame; frames the client
// sends afterwards are consumed but not recorded. A line that violates the
// frame grammar aborts the scan with a MalformedTraceError: the returned map
// then contains only the clients whose signatures were already complete.
func ExtractSignatures(trace string) (map[int]*Signature, error) {
	p := &traceParser{lines: strings.Split(trace, "\n")}
	frames := make(map[int][]Frame)
	done := make(map[int]bool)

	for {
		line, more := p.next()
		if !more {
			break
		}
		m := framePattern.FindStringSubmatch(line)
		if m == nil {
			p.pending = append(p.pending, line)
			continue
		}

		clientID, _ := strconv.Atoi(m[1])
		frameType := m[2]
		streamID, _ := strconv.Atoi(m[3])

		var frame Frame
		var err error
		switch frameType {
		case TypeSettings:
			frame, err = p.consumeSettingsFrame(&streamID)
		case TypeWindowUpdate:
			frame, err = p.consumeWindowUpdateFrame(&streamID)
		case TypeHeaders:
			frame = &HeadersFrame{
				StreamID:      &streamID,
				PseudoHeaders: pseudoHeadersIn(p.pending, streamID),
			}
		case TypePriority:
			frame, err = p.consumePriorityFrame(&streamID)
		default:
			// the log grammar is assumed exhaustively known; an
			// unrecognised type here means we cannot tell how many
			// body lines follow
			err = &MalformedTraceError{Line: line, Reason: "unknown frame type " + frameType}
		}
		if err != nil {
			return finalized(frames, done), err
		}

		log.Tracef("client %v sent %v frame on stream %v", clientID, frameType, streamID)
		p.pending = p.pending[:0]

		if done[clientID] {
			// past this client's cutoff; the frame was parsed only to
			// keep the cursor aligned
			continue
		}
		frames[clientID] = append(frames[clientID], frame)
		if frameType == TypeHeaders {
			done[clientID] = true
		}
	}

	ret := make(map[int]*Signature, len(frames))
	for clientID, clientFrames := range frames {
		ret[clientID] = &Signature{frames: clientFrames}
	}
	return ret, nil
}

// finalized keeps only the clients whose extraction had already reached its
// HEADERS cutoff. A malformed frame for one client must not invalidate them.
func finalized(frames map[int][]Frame, done map[int]bool) map[int]*Signature {
	ret := make(map[int]*Signature)
	for clientID, clientFrames := range frames {
		if done[clientID] {
			ret[clientID] = &Signature{frames: clientFrames}
		}
	}
	return ret
}

func (p *traceParser) consumeSettingsFrame(streamID *int) (Frame, error) {
	// lines up to the parameter count carry no settings information
	var niv int
	for {
		line, more := p.next()
		if !more {
			return nil, &MalformedTraceError{Reason: "trace ended before SETTINGS parameter count"}
		}
		if m := nivPattern.FindStringSubmatch(line); m != nil {
			niv, _ = strconv.Atoi(m[1])
			break
		}
	}

	params := make([]SettingParam, 0, niv)
	for i := 0; i < niv; i++ {
		line, more := p.next()
		if !more {
			return nil, &MalformedTraceError{Reason: "trace ended mid SETTINGS frame"}
		}
		m := settingPattern.FindStringSubmatch(line)
		if m == nil {
			return nil, &MalformedTraceError{Line: line, Reason: "expected a SETTINGS parameter"}
		}
		id, err := strconv.ParseUint(m[1], 16, 16)
		if err != nil {
			return nil, &MalformedTraceError{Line: line, Reason: "unparsable parameter id"}
		}
		value, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			return nil, &MalformedTraceError{Line: line, Reason: "unparsable parameter value"}
		}
		log.Tracef("settings parameter %v=%v", http2.SettingID(id), value)
		params = append(params, SettingParam{ID: uint16(id), Value: uint32(value)})
	}
	return NewSettingsFrame(streamID, params), nil
}

func (p *traceParser) consumeWindowUpdateFrame(streamID *int) (Frame, error) {
	line, more := p.next()
	if !more {
		return nil, &MalformedTraceError{Reason: "trace ended mid WINDOW_UPDATE frame"}
	}
	m := windowUpdatePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, &MalformedTraceError{Line: line, Reason: "expected a window_size_increment"}
	}
	increment, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &MalformedTraceError{Line: line, Reason: "unparsable window_size_increment"}
	}
	return &WindowUpdateFrame{StreamID: streamID, WindowSizeIncrement: increment}, nil
}

func (p *traceParser) consumePriorityFrame(streamID *int) (Frame, error) {
	line, more := p.next()
	if !more {
		return nil, &MalformedTraceError{Reason: "trace ended mid PRIORITY frame"}
	}
	m := priorityPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, &MalformedTraceError{Line: line, Reason: "expected PRIORITY parameters"}
	}
	depStreamID, _ := strconv.Atoi(m[1])
	weight, _ := strconv.Atoi(m[2])
	exclusive, _ := strconv.Atoi(m[3])
	return &PriorityFrame{
		StreamID: streamID,
		Priority: Priority{DepStreamID: depStreamID, Weight: weight, Exclusive: exclusive != 0},
	}, nil
}

// pseudoHeadersIn scans the pending lines for the pseudo-headers received on
// streamID, e.g. "[id=1] [  1.031] recv (stream_id=13) :method: GET".
func pseudoHeadersIn(pending []string, streamID int) []string {
	pattern := regexp.MustCompile(fmt.Sprintf(`.*recv \(stream_id=%d\) (:[a-z]*?):`, streamID))
	pseudoHeaders := []string{}
	for _, line := range pending {
		if m := pattern.FindStringSubmatch(line); m != nil {
			pseudoHeaders = append(pseudoHeaders, m[1])
		}
	}
	return pseudoHeaders
}
