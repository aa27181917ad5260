package server

import (
	"context"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type methodType struct {
	method    reflect.Method
	withCtx   bool // first argument after the receiver is a context.Context
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// service is one registered receiver. Its name is the request's Interface.
type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	s := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		if mt, ok := suitableMethod(typ.Method(i)); ok {
			s.method[mt.method.Name] = mt
		}
	}
	if len(s.method) == 0 {
		return nil, fmt.Errorf("rpc: type %s has no exported methods of suitable type", s.name)
	}
	return s, nil
}

// suitableMethod accepts exported methods shaped like
//
//	func (t *T) Method(args *Args, reply *Reply) error
//	func (t *T) Method(ctx context.Context, args *Args, reply *Reply) error
func suitableMethod(m reflect.Method) (*methodType, bool) {
	mt := m.Type
	if mt.NumOut() != 1 || mt.Out(0) != errorType {
		return nil, false
	}
	in := 1 // skip the receiver
	withCtx := mt.NumIn() == 4 && mt.In(1) == contextType
	if withCtx {
		in++
	}
	if mt.NumIn() != in+2 {
		return nil, false
	}
	argType, replyType := mt.In(in), mt.In(in+1)
	if argType.Kind() != reflect.Ptr || replyType.Kind() != reflect.Ptr {
		return nil, false
	}
	return &methodType{
		method:    m,
		withCtx:   withCtx,
		ArgType:   argType.Elem(),
		ReplyType: replyType.Elem(),
	}, true
}

// call invokes the method; a panic in user code is returned as an error.
func (s *service) call(ctx context.Context, mt *methodType, argv, replyv reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rpc: %s.%s panicked: %v", s.name, mt.method.Name, r)
		}
	}()

	args := []reflect.Value{s.rcvr, argv, replyv}
	if mt.withCtx {
		args = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	}
	results := mt.method.Func.Call(args)
	if errv := results[0]; !errv.IsNil() {
		return errv.Interface().(error)
	}
	return nil
}
