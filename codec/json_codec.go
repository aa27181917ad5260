package codec

import (
	"encoding/json"
	"fmt"

	"dubbo-rpc/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Pros: human-readable, cross-language, easy to debug.
// Cons: numbers come back as float64, larger payload (field names repeated).
type JSONCodec struct{}

func (c *JSONCodec) Encode(m message.Message) ([]byte, error) {
	if err := checkMessage(m); err != nil {
		return nil, err
	}
	if m.Kind == message.KindRequest {
		return json.Marshal(m.Request)
	}
	return json.Marshal(m.Response)
}

func (c *JSONCodec) Decode(data []byte, kind message.Kind) (message.Message, error) {
	switch kind {
	case message.KindRequest:
		req := new(message.Request)
		if err := json.Unmarshal(data, req); err != nil {
			return message.Message{}, fmt.Errorf("json codec: %w", err)
		}
		return message.NewRequestMessage(req), nil
	case message.KindResponse:
		res := new(message.Response)
		if err := json.Unmarshal(data, res); err != nil {
			return message.Message{}, fmt.Errorf("json codec: %w", err)
		}
		return message.NewResponseMessage(res), nil
	}
	return message.Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func (c *JSONCodec) Name() string {
	return "json"
}
