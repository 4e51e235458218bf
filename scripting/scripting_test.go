package scripting

import "testing"

func TestRunRespondsWithStatusAndBody(t *testing.T) {
	a, err := New(`respond(200, "hello " + request.query.name);`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := a.Run(Request{Query: map[string]string{"name": "world"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Status != 200 || resp.Body != "hello world" {
		t.Fatalf("got %+v", resp)
	}
}

func TestRunReadsRequestFields(t *testing.T) {
	a, err := New(`respond(200, request.method + " " + request.path + " " + request.role);`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := a.Run(Request{Method: "POST", Path: "/api/widgets", Role: "admin"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Body != "POST /api/widgets admin" {
		t.Fatalf("got %q", resp.Body)
	}
}

func TestRunWithHeaders(t *testing.T) {
	a, err := New(`respond(201, "created", {"X-Created": "true"});`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := a.Run(Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Headers["X-Created"] != "true" {
		t.Fatalf("got %+v", resp.Headers)
	}
}

func TestNewRejectsSyntaxError(t *testing.T) {
	if _, err := New(`respond(200`); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestRunPropagatesRuntimeError(t *testing.T) {
	a, err := New(`throw new Error("boom");`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Run(Request{}); err == nil {
		t.Fatalf("expected runtime error")
	}
}
