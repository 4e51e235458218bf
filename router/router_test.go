package router

import "testing"

func TestMatchRouteFirstWins(t *testing.T) {
	tbl := NewTable(nil, []Route{
		{Match: "/api/", Handler: "action"},
		{Match: "/", Handler: "file"},
	})
	r, outcome := tbl.MatchRoute("/api/users", "GET")
	if outcome != OutcomeMatched || r.Handler != "action" {
		t.Fatalf("got %+v, %v", r, outcome)
	}
}

func TestMatchRouteMethodNotAllowed(t *testing.T) {
	tbl := NewTable(nil, []Route{
		{Match: "/admin", Methods: []string{"GET"}},
	})
	_, outcome := tbl.MatchRoute("/admin/panel", "POST")
	if outcome != OutcomeMethodNotAllowed {
		t.Fatalf("got %v", outcome)
	}
}

func TestMatchRouteNotFound(t *testing.T) {
	tbl := NewTable(nil, []Route{{Match: "/only"}})
	_, outcome := tbl.MatchRoute("/elsewhere", "GET")
	if outcome != OutcomeNotFound {
		t.Fatalf("got %v", outcome)
	}
}

func TestExactMatch(t *testing.T) {
	tbl := NewTable(nil, []Route{{Match: "/exact", Exact: true}, {Match: "/"}})
	r, outcome := tbl.MatchRoute("/exact/sub", "GET")
	if outcome != OutcomeMatched || r.Match != "/" {
		t.Fatalf("expected fallback prefix route, got %+v %v", r, outcome)
	}
}

func TestAllowHeaderSorted(t *testing.T) {
	r := Route{Methods: []string{"POST", "GET", "DELETE"}}
	if got := r.AllowHeader(); got != "DELETE, GET, POST" {
		t.Fatalf("got %q", got)
	}
}

func TestMatchRedirectWildcards(t *testing.T) {
	tbl := NewTable([]Redirect{{Path: "/old", To: "/new"}}, nil)
	rd, ok := tbl.MatchRedirect(Match{Scheme: "http", Host: "x", Path: "/old"})
	if !ok || rd.To != "/new" || rd.Status != 301 {
		t.Fatalf("got %+v, %v", rd, ok)
	}
}

func TestActionRegistryFirstPrefixWins(t *testing.T) {
	ar := NewActionRegistry([]Action{
		{Match: "/test/session", Role: "guest"},
		{Match: "/test", Role: "admin"},
	})
	a, ok := ar.Match("/test/session/create")
	if !ok || a.Role != "guest" {
		t.Fatalf("got %+v, %v", a, ok)
	}
}

func TestCORSOriginPrefersRequestOrigin(t *testing.T) {
	if got := CORSOrigin("https://foo.example", "http", "bar"); got != "https://foo.example" {
		t.Fatalf("got %q", got)
	}
	if got := CORSOrigin("", "http", "bar"); got != "http://bar" {
		t.Fatalf("got %q", got)
	}
}
