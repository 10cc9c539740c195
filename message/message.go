// Package message defines the three message shapes exchanged with a debug
// adapter and the classifier that tells them apart.
//
//   - Request:  a command invocation, client → adapter or adapter → client
//     ("reverse request"). Carries a unique seq and a command name.
//   - Response: the reply to exactly one prior Request, correlated by
//     request_seq. May arrive out of order relative to other responses.
//   - Event:    an unsolicited notification from the adapter, named by its
//     event field and tied to no request.
//
// Every message carries seq (unique per sender, monotonically increasing from
// 1) and a type discriminant. Payloads (arguments, body) stay opaque JSON here;
// typed per-command wrappers belong to callers.
package message

import "encoding/json"

// Wire values of the type discriminant.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Kind is the classification of a decoded message.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequest
	KindResponse
	KindEvent
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Request is a command invocation carrying opaque arguments.
type Request struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is the reply to the Request whose seq equals RequestSeq. On
// success, Body holds the result; on failure, Message holds a short
// adapter-supplied description and Error optional structured detail.
type Response struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq int64           `json:"request_seq"`
	Success    bool            `json:"success"`
	Command    string          `json:"command"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// Event is a fire-and-forget notification named by Event.
type Event struct {
	Seq   int64           `json:"seq"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// probe holds every discriminating field as raw JSON so a single field of the
// wrong type never poisons the others. Field order on the wire is irrelevant.
type probe struct {
	Seq        json.RawMessage `json:"seq"`
	Type       string          `json:"type"`
	Command    json.RawMessage `json:"command"`
	RequestSeq json.RawMessage `json:"request_seq"`
	Success    json.RawMessage `json:"success"`
	Event      json.RawMessage `json:"event"`
}

// Classify determines the shape of a raw JSON message. It checks both the
// type discriminant and the presence and JSON type of the fields that shape
// requires, tolerating adapters that populate fields inconsistently. Anything
// that fails the checks is KindUnknown; Classify never panics.
//
// Precedence: Response, then Event, then Request.
func Classify(raw []byte) Kind {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return KindUnknown
	}

	switch {
	case p.Type == TypeResponse && isInt(p.RequestSeq) && isBool(p.Success):
		return KindResponse
	case p.Type == TypeEvent && isString(p.Event) && isInt(p.Seq):
		return KindEvent
	case p.Type == TypeRequest && isString(p.Command) && isInt(p.Seq):
		return KindRequest
	default:
		return KindUnknown
	}
}

func isInt(raw json.RawMessage) bool {
	var v int64
	return raw != nil && json.Unmarshal(raw, &v) == nil
}

func isBool(raw json.RawMessage) bool {
	var v bool
	return raw != nil && json.Unmarshal(raw, &v) == nil
}

func isString(raw json.RawMessage) bool {
	var v string
	return raw != nil && json.Unmarshal(raw, &v) == nil
}

// NewRequest builds a Request, marshaling args to opaque JSON. A nil args
// omits the arguments field entirely.
func NewRequest(seq int64, command string, args any) (*Request, error) {
	req := &Request{Seq: seq, Type: TypeRequest, Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		req.Arguments = raw
	}
	return req, nil
}

// NewResponse builds a success Response answering req.
func NewResponse(seq int64, req *Request, body any) (*Response, error) {
	resp := &Response{
		Seq:        seq,
		Type:       TypeResponse,
		RequestSeq: req.Seq,
		Success:    true,
		Command:    req.Command,
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		resp.Body = raw
	}
	return resp, nil
}

// NewErrorResponse builds a failure Response answering req, with an optional
// structured detail value.
func NewErrorResponse(seq int64, req *Request, msg string, detail any) (*Response, error) {
	resp := &Response{
		Seq:        seq,
		Type:       TypeResponse,
		RequestSeq: req.Seq,
		Success:    false,
		Command:    req.Command,
		Message:    msg,
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		resp.Error = raw
	}
	return resp, nil
}
