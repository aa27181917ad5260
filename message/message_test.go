package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AddArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestMessageUnion(t *testing.T) {
	req := NewRequestMessage(&Request{ID: 7, Interface: "Arith", Method: "Add"})
	assert.True(t, req.Valid())
	assert.Equal(t, uint64(7), req.ID())
	assert.Equal(t, "request", req.Kind.String())

	res := NewResponseMessage(&Response{ID: 9, Status: StatusOK})
	assert.True(t, res.Valid())
	assert.Equal(t, uint64(9), res.ID())

	bad := Message{Kind: KindRequest, Response: &Response{}}
	assert.False(t, bad.Valid())
	assert.Equal(t, uint64(0), bad.ID())
}

func TestResponseErr(t *testing.T) {
	assert.NoError(t, (&Response{Status: StatusOK}).Err())

	err := (&Response{Status: StatusServiceError, Exception: "boom"}).Err()
	require.Error(t, err)
	assert.Equal(t, "rpc: service error: boom", err.Error())

	err = (&Response{Status: StatusServerTimeout}).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server timeout")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "status(3)", Status(3).String())
}

func TestGenericAndBind(t *testing.T) {
	g, err := Generic(&AddArgs{A: 1, B: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, g)

	var args AddArgs
	require.NoError(t, Bind(g, &args))
	assert.Equal(t, AddArgs{A: 1, B: 2}, args)

	// Hessian2 decodes maps with interface keys.
	var fromHessian AddArgs
	require.NoError(t, Bind(map[any]any{"a": int64(3), "b": int64(4)}, &fromHessian))
	assert.Equal(t, AddArgs{A: 3, B: 4}, fromHessian)

	nilv, err := Generic(nil)
	require.NoError(t, err)
	assert.Nil(t, nilv)
}
