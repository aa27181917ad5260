package codec

import (
	"fmt"

	hessian "github.com/apache/dubbo-go-hessian2"

	"dubbo-rpc/message"
)

// Response body markers, written ahead of the value or exception.
const (
	responseWithException int32 = 0
	responseValue         int32 = 1
	responseNullValue     int32 = 2
)

// Hessian2Codec writes the body as a flat sequence of Hessian2 values:
//
//	request:  version, interface, method, len(paramTypes), paramTypes..., len(params), params...
//	response: marker, value | exception
//
// Hessian2 keeps integer widths: int32 and int64 values come back as they went in.
type Hessian2Codec struct{}

func (c *Hessian2Codec) Encode(m message.Message) ([]byte, error) {
	if err := checkMessage(m); err != nil {
		return nil, err
	}
	e := hessian.NewEncoder()
	var fields []any
	if m.Kind == message.KindRequest {
		req := m.Request
		fields = append(fields, req.Version, req.Interface, req.Method, int32(len(req.ParamTypes)))
		for _, pt := range req.ParamTypes {
			fields = append(fields, pt)
		}
		fields = append(fields, int32(len(req.Params)))
		fields = append(fields, req.Params...)
	} else {
		res := m.Response
		switch {
		case res.Exception != "":
			fields = append(fields, responseWithException, res.Exception)
		case res.Value == nil:
			fields = append(fields, responseNullValue)
		default:
			fields = append(fields, responseValue, res.Value)
		}
	}
	for _, f := range fields {
		if err := e.Encode(f); err != nil {
			return nil, fmt.Errorf("hessian2 codec: %w", err)
		}
	}
	return e.Buffer(), nil
}

func (c *Hessian2Codec) Decode(data []byte, kind message.Kind) (message.Message, error) {
	d := &hessianReader{d: hessian.NewDecoder(data)}
	switch kind {
	case message.KindRequest:
		req := &message.Request{
			Version:   d.string(),
			Interface: d.string(),
			Method:    d.string(),
		}
		if n := d.count(len(data)); n > 0 {
			req.ParamTypes = make([]string, 0, n)
			for i := 0; i < n && d.err == nil; i++ {
				req.ParamTypes = append(req.ParamTypes, d.string())
			}
		}
		if n := d.count(len(data)); n > 0 {
			req.Params = make([]any, 0, n)
			for i := 0; i < n && d.err == nil; i++ {
				req.Params = append(req.Params, d.value())
			}
		}
		if d.err != nil {
			return message.Message{}, d.err
		}
		return message.NewRequestMessage(req), nil
	case message.KindResponse:
		res := new(message.Response)
		switch marker := d.int(); int64(marker) {
		case int64(responseWithException):
			res.Exception = d.string()
		case int64(responseValue):
			res.Value = d.value()
		case int64(responseNullValue):
		default:
			if d.err == nil {
				d.err = fmt.Errorf("hessian2 codec: unknown response marker %d", marker)
			}
		}
		if d.err != nil {
			return message.Message{}, d.err
		}
		return message.NewResponseMessage(res), nil
	}
	return message.Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

func (c *Hessian2Codec) Type() CodecType {
	return CodecTypeHessian2
}

func (c *Hessian2Codec) Name() string {
	return "hessian2"
}

// hessianReader keeps the first error so Decode reads like a straight sequence.
type hessianReader struct {
	d   *hessian.Decoder
	err error
}

func (r *hessianReader) value() any {
	if r.err != nil {
		return nil
	}
	v, err := r.d.Decode()
	if err != nil {
		r.err = fmt.Errorf("hessian2 codec: %w", err)
		return nil
	}
	return v
}

func (r *hessianReader) string() string {
	v := r.value()
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	if r.err == nil {
		r.err = fmt.Errorf("hessian2 codec: expected string, got %T", v)
	}
	return ""
}

func (r *hessianReader) int() int {
	v := r.value()
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	if r.err == nil {
		r.err = fmt.Errorf("hessian2 codec: expected int, got %T", v)
	}
	return 0
}

// count reads a length prefix. Every element takes at least one byte, so a
// count above limit (the body size) cannot be honest.
func (r *hessianReader) count(limit int) int {
	n := r.int()
	if r.err == nil && (n < 0 || n > limit) {
		r.err = fmt.Errorf("hessian2 codec: element count %d out of range [0, %d]", n, limit)
		return 0
	}
	return n
}
