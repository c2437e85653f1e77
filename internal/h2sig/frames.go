package h2sig

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/cbeuw/websig/internal/signature"
	"golang.org/x/net/http2"
)

// Wire-level frame type names as they appear both in nghttpd's log and in
// serialised records.
const (
	TypeSettings     = "SETTINGS"
	TypeWindowUpdate = "WINDOW_UPDATE"
	TypeHeaders      = "HEADERS"
	TypePriority     = "PRIORITY"
)

// GREASE replaces both the id and the value of a SETTINGS parameter outside
// the registered set. Some browsers (e.g. Chrome 98) send a non-existent,
// randomly-generated settings key, akin to TLS GREASE, so the randomised
// number itself carries no signature information.
const GREASE = "GREASE"

// Frame is one HTTP/2 frame observed from a client, reduced to the fields
// that identify the sending implementation.
type Frame interface {
	Type() string
	Record() signature.Record
}

func registeredSetting(id uint16) bool {
	return id >= uint16(http2.SettingHeaderTableSize) && id <= uint16(http2.SettingMaxHeaderListSize)
}

// OpaqueFrame stands in for any frame type without a dedicated variant. Only
// its identity survives: no payload is captured for unknown types.
type OpaqueFrame struct {
	FrameType string
	StreamID  *int
}

func (f *OpaqueFrame) Type() string { return f.FrameType }

func (f *OpaqueFrame) Record() signature.Record {
	return baseRecord(f.FrameType, f.StreamID)
}

func baseRecord(frameType string, streamID *int) signature.Record {
	rec := signature.Record{
		"frame_type": frameType,
	}
	if streamID != nil {
		rec["stream_id"] = *streamID
	}
	return rec
}

// Setting is one {id, value} pair of a SETTINGS frame after GREASE
// normalisation: ID and Value are either both int or both the string GREASE.
type Setting struct {
	ID    interface{}
	Value interface{}
}

type SettingsFrame struct {
	StreamID *int
	Settings []Setting
}

// NewSettingsFrame normalises the raw parameter list: any id outside the
// registered set 1..6 becomes GREASE and its value is discarded.
func NewSettingsFrame(streamID *int, params []SettingParam) *SettingsFrame {
	settings := make([]Setting, 0, len(params))
	for _, p := range params {
		if registeredSetting(p.ID) {
			settings = append(settings, Setting{ID: int(p.ID), Value: int(p.Value)})
		} else {
			settings = append(settings, Setting{ID: GREASE, Value: GREASE})
		}
	}
	return &SettingsFrame{StreamID: streamID, Settings: settings}
}

// SettingParam is a raw settings parameter as sent on the wire.
type SettingParam struct {
	ID    uint16
	Value uint32
}

func (f *SettingsFrame) Type() string { return TypeSettings }

func (f *SettingsFrame) Record() signature.Record {
	rec := baseRecord(TypeSettings, f.StreamID)
	settings := make([]interface{}, len(f.Settings))
	for i, s := range f.Settings {
		settings[i] = signature.Record{
			"id":    s.ID,
			"value": s.Value,
		}
	}
	rec["settings"] = settings
	return rec
}

type WindowUpdateFrame struct {
	StreamID            *int
	WindowSizeIncrement int
}

func (f *WindowUpdateFrame) Type() string { return TypeWindowUpdate }

func (f *WindowUpdateFrame) Record() signature.Record {
	rec := baseRecord(TypeWindowUpdate, f.StreamID)
	rec["window_size_increment"] = f.WindowSizeIncrement
	return rec
}

// HeadersFrame records only the pseudo-headers of the request, in the order
// they appeared. The actual HTTP headers are excluded: the signature is about
// HTTP/2 behaviour, not request content.
type HeadersFrame struct {
	StreamID      *int
	PseudoHeaders []string
}

func (f *HeadersFrame) Type() string { return TypeHeaders }

func (f *HeadersFrame) Record() signature.Record {
	rec := baseRecord(TypeHeaders, f.StreamID)
	rec["pseudo_headers"] = f.PseudoHeaders
	return rec
}

type Priority struct {
	DepStreamID int
	Weight      int
	Exclusive   bool
}

type PriorityFrame struct {
	StreamID *int
	Priority Priority
}

func (f *PriorityFrame) Type() string { return TypePriority }

func (f *PriorityFrame) Record() signature.Record {
	rec := baseRecord(TypePriority, f.StreamID)
	rec["priority"] = signature.Record{
		"dep_stream_id": f.Priority.DepStreamID,
		"weight":        f.Priority.Weight,
		"exclusive":     f.Priority.Exclusive,
	}
	return rec
}

type frameDecoder func(rec signature.Record) (Frame, error)

// frameDecoders maps a frame type tag to its variant constructor. Adding a
// new frame type means adding a variant and an entry here. Frame types
// without an entry decode to OpaqueFrame; contrast with the extractor, where
// the log grammar is assumed exhaustively known and an unknown type is fatal.
var frameDecoders = map[string]frameDecoder{
	TypeSettings:     decodeSettingsFrame,
	TypeWindowUpdate: decodeWindowUpdateFrame,
	TypeHeaders:      decodeHeadersFrame,
	TypePriority:     decodePriorityFrame,
}

// DecodeFrame rebuilds a Frame from its record form. Records decoded from
// JSON are accepted: integer fields may arrive as float64 or json.Number.
func DecodeFrame(rec signature.Record) (Frame, error) {
	frameType, ok := rec["frame_type"].(string)
	if !ok {
		return nil, &signature.DecodeError{Kind: "frame", Field: "frame_type"}
	}
	streamID, err := optionalIntField(rec, frameType, "stream_id")
	if err != nil {
		return nil, err
	}
	decoder, known := frameDecoders[frameType]
	if !known {
		return &OpaqueFrame{FrameType: frameType, StreamID: streamID}, nil
	}
	return decoder(rec)
}

func decodeSettingsFrame(rec signature.Record) (Frame, error) {
	streamID, err := optionalIntField(rec, TypeSettings, "stream_id")
	if err != nil {
		return nil, err
	}
	rawSettings, ok := rec["settings"].([]interface{})
	if !ok {
		return nil, &signature.DecodeError{Kind: TypeSettings + " frame", Field: "settings"}
	}
	settings := make([]Setting, 0, len(rawSettings))
	for _, raw := range rawSettings {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &signature.DecodeError{Kind: TypeSettings + " frame", Field: "settings"}
		}
		id, idErr := settingField(entry, "id")
		value, valueErr := settingField(entry, "value")
		if idErr != nil {
			return nil, idErr
		}
		if valueErr != nil {
			return nil, valueErr
		}
		// re-normalise so a record with a raw non-registered id cannot
		// smuggle its value past GREASE handling
		if num, isNum := id.(int); isNum && !registeredSetting(uint16(num)) {
			id, value = GREASE, GREASE
		}
		if id == GREASE {
			value = GREASE
		}
		settings = append(settings, Setting{ID: id, Value: value})
	}
	return &SettingsFrame{StreamID: streamID, Settings: settings}, nil
}

func settingField(entry map[string]interface{}, key string) (interface{}, error) {
	raw, present := entry[key]
	if !present {
		return nil, &signature.DecodeError{Kind: TypeSettings + " frame", Field: "settings." + key}
	}
	if s, ok := raw.(string); ok {
		if s != GREASE {
			return nil, &signature.DecodeError{Kind: TypeSettings + " frame", Field: "settings." + key}
		}
		return GREASE, nil
	}
	num, ok := toInt(raw)
	if !ok {
		return nil, &signature.DecodeError{Kind: TypeSettings + " frame", Field: "settings." + key}
	}
	return num, nil
}

func decodeWindowUpdateFrame(rec signature.Record) (Frame, error) {
	streamID, err := optionalIntField(rec, TypeWindowUpdate, "stream_id")
	if err != nil {
		return nil, err
	}
	increment, err := requiredIntField(rec, TypeWindowUpdate, "window_size_increment")
	if err != nil {
		return nil, err
	}
	return &WindowUpdateFrame{StreamID: streamID, WindowSizeIncrement: increment}, nil
}

func decodeHeadersFrame(rec signature.Record) (Frame, error) {
	streamID, err := optionalIntField(rec, TypeHeaders, "stream_id")
	if err != nil {
		return nil, err
	}
	raw, present := rec["pseudo_headers"]
	if !present {
		return nil, &signature.DecodeError{Kind: TypeHeaders + " frame", Field: "pseudo_headers"}
	}
	pseudoHeaders := []string{}
	switch val := raw.(type) {
	case []string:
		pseudoHeaders = append(pseudoHeaders, val...)
	case []interface{}:
		for _, elem := range val {
			name, ok := elem.(string)
			if !ok {
				return nil, &signature.DecodeError{Kind: TypeHeaders + " frame", Field: "pseudo_headers"}
			}
			pseudoHeaders = append(pseudoHeaders, name)
		}
	default:
		return nil, &signature.DecodeError{Kind: TypeHeaders + " frame", Field: "pseudo_headers"}
	}
	return &HeadersFrame{StreamID: streamID, PseudoHeaders: pseudoHeaders}, nil
}

func decodePriorityFrame(rec signature.Record) (Frame, error) {
	streamID, err := optionalIntField(rec, TypePriority, "stream_id")
	if err != nil {
		return nil, err
	}
	rawPriority, ok := rec["priority"].(map[string]interface{})
	if !ok {
		return nil, &signature.DecodeError{Kind: TypePriority + " frame", Field: "priority"}
	}
	depStreamID, err := requiredIntField(rawPriority, TypePriority, "priority.dep_stream_id")
	if err != nil {
		return nil, err
	}
	weight, err := requiredIntField(rawPriority, TypePriority, "priority.weight")
	if err != nil {
		return nil, err
	}
	exclusive, ok := rawPriority["exclusive"].(bool)
	if !ok {
		return nil, &signature.DecodeError{Kind: TypePriority + " frame", Field: "priority.exclusive"}
	}
	return &PriorityFrame{
		StreamID: streamID,
		Priority: Priority{DepStreamID: depStreamID, Weight: weight, Exclusive: exclusive},
	}, nil
}

func optionalIntField(rec signature.Record, frameType string, key string) (*int, error) {
	raw, present := rec[key]
	if !present {
		return nil, nil
	}
	num, ok := toInt(raw)
	if !ok {
		return nil, &signature.DecodeError{Kind: frameType + " frame", Field: key}
	}
	return &num, nil
}

// requiredIntField reads rec[field]. key may be dotted for reporting nested
// fields, in which case the lookup uses the last component.
func requiredIntField(rec map[string]interface{}, frameType string, key string) (int, error) {
	field := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		field = key[i+1:]
	}
	raw, present := rec[field]
	if !present {
		return 0, &signature.DecodeError{Kind: frameType + " frame", Field: key}
	}
	num, ok := toInt(raw)
	if !ok {
		return 0, &signature.DecodeError{Kind: frameType + " frame", Field: key}
	}
	return num, nil
}

func toInt(raw interface{}) (int, bool) {
	switch num := raw.(type) {
	case int:
		return num, true
	case int64:
		return int(num), true
	case float64:
		if num != math.Trunc(num) {
			return 0, false
		}
		return int(num), true
	case json.Number:
		parsed, err := num.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	default:
		return 0, false
	}
}
