package codec

import (
	"testing"

	hessian "github.com/apache/dubbo-go-hessian2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubbo-rpc/message"
)

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var out []Codec
	for _, ct := range []CodecType{CodecTypeHessian2, CodecTypeJSON, CodecTypeProtobuf} {
		c, err := GetCodec(ct)
		require.NoError(t, err)
		require.Equal(t, ct, c.Type())
		out = append(out, c)
	}
	return out
}

func TestRequestRoundTrip(t *testing.T) {
	req := &message.Request{
		Version:    message.DefaultVersion,
		Interface:  "ArithService",
		Method:     "Add",
		ParamTypes: []string{"string", "bool", "float64"},
		Params:     []any{"a", true, 1.5},
	}
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Encode(message.NewRequestMessage(req))
			require.NoError(t, err)

			got, err := c.Decode(data, message.KindRequest)
			require.NoError(t, err)
			require.Equal(t, message.KindRequest, got.Kind)
			assert.Equal(t, req, got.Request)
		})
	}
}

func TestEmptyRequestRoundTrip(t *testing.T) {
	req := &message.Request{Interface: "Foo", Method: "bar"}
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Encode(message.NewRequestMessage(req))
			require.NoError(t, err)

			got, err := c.Decode(data, message.KindRequest)
			require.NoError(t, err)
			assert.Equal(t, req, got.Request)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		res  *message.Response
	}{
		{"value", &message.Response{Value: "hello"}},
		{"null", &message.Response{}},
		{"exception", &message.Response{Exception: "divide by zero"}},
	}
	for _, c := range allCodecs(t) {
		for _, tc := range cases {
			t.Run(c.Name()+"/"+tc.name, func(t *testing.T) {
				data, err := c.Encode(message.NewResponseMessage(tc.res))
				require.NoError(t, err)

				got, err := c.Decode(data, message.KindResponse)
				require.NoError(t, err)
				require.Equal(t, message.KindResponse, got.Kind)
				assert.Equal(t, tc.res, got.Response)
			})
		}
	}
}

func TestHessian2KeepsIntegers(t *testing.T) {
	c := &Hessian2Codec{}
	data, err := c.Encode(message.NewResponseMessage(&message.Response{Value: int64(42)}))
	require.NoError(t, err)

	got, err := c.Decode(data, message.KindResponse)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Response.Value)
}

func TestEncodeRejectsMismatchedKind(t *testing.T) {
	bad := message.Message{Kind: message.KindResponse, Request: &message.Request{}}
	for _, c := range allCodecs(t) {
		_, err := c.Encode(bad)
		assert.ErrorIs(t, err, ErrInvalidMessage, c.Name())
	}
}

func TestDecodeMalformed(t *testing.T) {
	garbage := []byte{0xff, 0x00, 0x13, 0x37}
	for _, c := range allCodecs(t) {
		_, err := c.Decode(garbage, message.KindRequest)
		assert.Error(t, err, c.Name())
	}
}

func hessianBody(t *testing.T, fields ...any) []byte {
	t.Helper()
	e := hessian.NewEncoder()
	for _, f := range fields {
		require.NoError(t, e.Encode(f))
	}
	return e.Buffer()
}

// Bodies that parse value by value but carry impossible counts or markers.
func TestHessian2DecodeHostileBodies(t *testing.T) {
	tests := []struct {
		name string
		kind message.Kind
		body []any
		want string
	}{
		{"huge paramTypes count", message.KindRequest, []any{"2.0.2", "Foo", "bar", int64(1 << 60)}, "element count"},
		{"negative paramTypes count", message.KindRequest, []any{"2.0.2", "Foo", "bar", int32(-1)}, "element count"},
		{"huge params count", message.KindRequest, []any{"2.0.2", "Foo", "bar", int32(0), int64(1 << 40)}, "element count"},
		{"negative params count", message.KindRequest, []any{"2.0.2", "Foo", "bar", int32(0), int32(-5), "x"}, "element count"},
		{"count beyond body", message.KindRequest, []any{"2.0.2", "Foo", "bar", int32(0), int32(200), "x"}, "element count"},
		{"count larger than elements present", message.KindRequest, []any{"2.0.2", "Foo", "bar", int32(3), "a"}, "hessian2 codec"},
		{"unknown marker with trailing data", message.KindResponse, []any{int32(7), "trailing"}, "unknown response marker 7"},
		{"marker wrapping to a valid one", message.KindResponse, []any{int64(1<<32 + 1), "v"}, "unknown response marker"},
	}
	c := &Hessian2Codec{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				m   message.Message
				err error
			)
			require.NotPanics(t, func() {
				m, err = c.Decode(hessianBody(t, tt.body...), tt.kind)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, m.Request)
			assert.Nil(t, m.Response)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	c := &JSONCodec{}
	_, err := c.Decode([]byte(`{}`), message.Kind(9))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry(t *testing.T) {
	_, err := GetCodec(30)
	assert.ErrorIs(t, err, ErrUnknownCodec)

	_, err = GetCodec(MaxCodecType + 1)
	assert.ErrorIs(t, err, ErrInvalidCodecType)

	require.NoError(t, Register(aliasCodec{&JSONCodec{}, 30}))
	defer Unregister(30)

	c, err := GetCodec(30)
	require.NoError(t, err)
	assert.Equal(t, CodecType(30), c.Type())

	assert.ErrorIs(t, Register(aliasCodec{&JSONCodec{}, 40}), ErrInvalidCodecType)
}

type aliasCodec struct {
	*JSONCodec
	id CodecType
}

func (a aliasCodec) Type() CodecType { return a.id }

func TestByName(t *testing.T) {
	for name, want := range map[string]CodecType{
		"hessian2": CodecTypeHessian2,
		"json":     CodecTypeJSON,
		"protobuf": CodecTypeProtobuf,
	} {
		c, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, c.Type())
	}

	_, err := ByName("kryo")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
