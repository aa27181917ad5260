// Package message defines the RPC messages exchanged between client and server.
//
// A Message is the tagged union the frame codec works with: Kind says which of
// Request or Response is set. The serializer turns the body of either into
// bytes, and the protocol package wraps those bytes in a 16-byte frame header.
//
// Fields that travel in the frame header (ID, Status, OneWay, Event) are not
// part of the serialized body; the decoder restores them from the header.
package message

import "fmt"

// DefaultVersion is stamped on outgoing requests that leave Version empty.
const DefaultVersion = "2.0.2"

// Kind is the direction discriminant of a Message.
type Kind byte

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Request is a single call from client to server.
//
//   - Interface names the service, Method the method on it.
//   - ParamTypes describes each entry of Params; the codec never interprets either.
type Request struct {
	ID         uint64   `json:"-"`
	Version    string   `json:"version"`
	Interface  string   `json:"interface"`
	Method     string   `json:"method"`
	ParamTypes []string `json:"paramTypes,omitempty"`
	Params     []any    `json:"params,omitempty"`
	OneWay     bool     `json:"-"` // no response expected (two-way flag clear)
	Event      bool     `json:"-"` // protocol event such as heartbeat
}

// Response answers the request with the same ID.
// Exception is non-empty when the call failed on the server side.
type Response struct {
	ID        uint64 `json:"-"`
	Status    Status `json:"-"`
	Value     any    `json:"value,omitempty"`
	Exception string `json:"exception,omitempty"`
	Event     bool   `json:"-"`
}

// Err returns the response failure as an error, or nil when the call succeeded.
func (r *Response) Err() error {
	if r.Status == StatusOK && r.Exception == "" {
		return nil
	}
	if r.Exception == "" {
		return fmt.Errorf("rpc: %s", r.Status)
	}
	return fmt.Errorf("rpc: %s: %s", r.Status, r.Exception)
}

// Message is a Request or a Response, selected by Kind.
// Serialization records the codec id the frame was (or will be) encoded with.
type Message struct {
	Kind          Kind
	Serialization byte
	Request       *Request
	Response      *Response
}

func NewRequestMessage(req *Request) Message {
	return Message{Kind: KindRequest, Request: req}
}

func NewResponseMessage(res *Response) Message {
	return Message{Kind: KindResponse, Response: res}
}

// ID returns the message id of whichever side of the union is set.
func (m Message) ID() uint64 {
	switch m.Kind {
	case KindRequest:
		if m.Request != nil {
			return m.Request.ID
		}
	case KindResponse:
		if m.Response != nil {
			return m.Response.ID
		}
	}
	return 0
}

// Valid reports whether Kind matches the populated side.
func (m Message) Valid() bool {
	switch m.Kind {
	case KindRequest:
		return m.Request != nil && m.Response == nil
	case KindResponse:
		return m.Response != nil && m.Request == nil
	}
	return false
}
