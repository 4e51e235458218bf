// Package scripting lets a route action be implemented as a small
// JavaScript snippet instead of compiled Go, evaluated by the otto pure-Go
// interpreter. A device can add a new action at runtime from JS source,
// without recompiling firmware; this package compiles the source it is
// handed and reads no files or directories itself.
package scripting

import (
	"fmt"
	"sync"

	"github.com/robertkrimen/otto"
)

// Request is the read-only view of an incoming request exposed to a script
// as the "request" global.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    string
	Role    string
	User    string
}

// Response is populated by a script calling respond(status, body[, headers])
// and read back by the caller after Run returns.
type Response struct {
	Status  int
	Body    string
	Headers map[string]string
}

// Action wraps a single otto.Otto VM running one script. Each Action is
// backed by its own VM so concurrent requests to different actions never
// contend; a mutex serializes concurrent requests to the same action.
type Action struct {
	source string
	vm     *otto.Otto
	mu     sync.Mutex
}

// New compiles source into a fresh VM. Compilation errors (syntax errors)
// are returned immediately so a malformed action file is rejected at load
// time rather than on first request.
func New(source string) (*Action, error) {
	vm := otto.New()
	if _, err := vm.Compile("action.js", source); err != nil {
		return nil, fmt.Errorf("scripting: compile: %w", err)
	}
	return &Action{source: source, vm: vm}, nil
}

// Run evaluates the action's script against req and returns the Response
// the script built via respond(...). A script that never calls respond
// produces a zero-value Response (callers should treat Status == 0 as "the
// script did not respond").
func (a *Action) Run(req Request) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var resp Response
	vm := a.vm

	if err := bindRequest(vm, req); err != nil {
		return resp, err
	}
	if err := vm.Set("respond", func(call otto.FunctionCall) otto.Value {
		status, _ := call.Argument(0).ToInteger()
		body, _ := call.Argument(1).ToString()
		resp.Status = int(status)
		resp.Body = body
		resp.Headers = map[string]string{}
		if hdrArg := call.Argument(2); hdrArg.IsObject() {
			obj := hdrArg.Object()
			for _, key := range obj.Keys() {
				v, err := obj.Get(key)
				if err == nil {
					resp.Headers[key] = v.String()
				}
			}
		}
		return otto.UndefinedValue()
	}); err != nil {
		return resp, fmt.Errorf("scripting: bind respond: %w", err)
	}

	if _, err := vm.Run(a.source); err != nil {
		return resp, fmt.Errorf("scripting: run: %w", err)
	}
	return resp, nil
}

func bindRequest(vm *otto.Otto, req Request) error {
	obj, err := vm.Object(`({})`)
	if err != nil {
		return fmt.Errorf("scripting: build request object: %w", err)
	}
	obj.Set("method", req.Method)
	obj.Set("path", req.Path)
	obj.Set("body", req.Body)
	obj.Set("role", req.Role)
	obj.Set("user", req.User)
	obj.Set("query", toJSObject(vm, req.Query))
	obj.Set("headers", toJSObject(vm, req.Headers))
	return vm.Set("request", obj)
}

func toJSObject(vm *otto.Otto, m map[string]string) *otto.Object {
	obj, _ := vm.Object(`({})`)
	for k, v := range m {
		obj.Set(k, v)
	}
	return obj
}
