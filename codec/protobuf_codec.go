package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"dubbo-rpc/message"
)

// ProtobufCodec carries the body as a google.protobuf.Struct.
// Values must be representable as JSON-like data; numbers decode as float64.
type ProtobufCodec struct{}

func (c *ProtobufCodec) Encode(m message.Message) ([]byte, error) {
	if err := checkMessage(m); err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if m.Kind == message.KindRequest {
		req := m.Request
		fields["version"] = req.Version
		fields["interface"] = req.Interface
		fields["method"] = req.Method
		if len(req.ParamTypes) > 0 {
			types := make([]any, len(req.ParamTypes))
			for i, pt := range req.ParamTypes {
				types[i] = pt
			}
			fields["paramTypes"] = types
		}
		if len(req.Params) > 0 {
			fields["params"] = req.Params
		}
	} else {
		res := m.Response
		if res.Value != nil {
			fields["value"] = res.Value
		}
		if res.Exception != "" {
			fields["exception"] = res.Exception
		}
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf codec: %w", err)
	}
	return proto.Marshal(st)
}

func (c *ProtobufCodec) Decode(data []byte, kind message.Kind) (message.Message, error) {
	st := new(structpb.Struct)
	if err := proto.Unmarshal(data, st); err != nil {
		return message.Message{}, fmt.Errorf("protobuf codec: %w", err)
	}
	fields := st.AsMap()
	switch kind {
	case message.KindRequest:
		req := &message.Request{
			Version:   stringField(fields, "version"),
			Interface: stringField(fields, "interface"),
			Method:    stringField(fields, "method"),
		}
		if types, ok := fields["paramTypes"].([]any); ok {
			req.ParamTypes = make([]string, 0, len(types))
			for _, t := range types {
				s, ok := t.(string)
				if !ok {
					return message.Message{}, fmt.Errorf("protobuf codec: param type %T is not a string", t)
				}
				req.ParamTypes = append(req.ParamTypes, s)
			}
		}
		if params, ok := fields["params"].([]any); ok {
			req.Params = params
		}
		return message.NewRequestMessage(req), nil
	case message.KindResponse:
		return message.NewResponseMessage(&message.Response{
			Value:     fields["value"],
			Exception: stringField(fields, "exception"),
		}), nil
	}
	return message.Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

func (c *ProtobufCodec) Type() CodecType {
	return CodecTypeProtobuf
}

func (c *ProtobufCodec) Name() string {
	return "protobuf"
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
