/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package rpc

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"google.golang.org/grpc"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// Handler serves single rpc method.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Typed adapts function with typed request into Handler.
func Typed[Req any, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req Req
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, dspcommon.WrapError(dspcommon.ErrInvalid, err, "invalid request")
			}
		}
		return fn(ctx, req)
	}
}

// Router is method table of one rpc service.
type Router struct {
	service  string
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRouter(service string) *Router {
	return &Router{service: service, handlers: map[string]Handler{}}
}

func (r *Router) Service() string {
	return r.service
}

// Register adds method, registering same method twice is programming error.
func (r *Router) Register(method string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		panic("rpc method '" + method + "' is already registered for " + r.service)
	}
	r.handlers[method] = handler
}

func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.handlers))
	for method := range r.handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

func (r *Router) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, dspcommon.NewError(dspcommon.ErrProgramming, "method '%s' is not supported by %s", method, r.service)
	}
	return handler(ctx, params)
}

// ServiceDesc describes router methods for grpc server. Payloads are raw
// json, so no generated stubs are needed.
func (r *Router) ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: r.service,
		HandlerType: (*any)(nil),
		Metadata:    r.service,
	}
	for _, method := range r.Methods() {
		methodName := method
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: methodName,
			Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				params := json.RawMessage{}
				if err := dec(&params); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return r.Dispatch(ctx, methodName, req.(json.RawMessage))
				}
				if interceptor == nil {
					return handler(ctx, params)
				}
				info := &grpc.UnaryServerInfo{Server: r, FullMethod: "/" + r.service + "/" + methodName}
				return interceptor(ctx, params, info, handler)
			},
		})
	}
	return desc
}
