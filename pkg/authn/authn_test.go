package authn

import (
	"context"
	"net/http"
	"testing"
)

func testReq(headers map[string]string) *http.Request {
	req, _ := http.NewRequest("GET", "http://example.test", nil)
	req.RemoteAddr = "203.0.113.10:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestParseBearer(t *testing.T) {
	tok, ok := parseBearerToken("Bearer abc123")
	if !ok || tok != "abc123" {
		t.Fatalf("expected parsed bearer token, got ok=%v token=%q", ok, tok)
	}
	if _, ok := parseBearerToken("abc123"); ok {
		t.Fatal("expected parse failure without Bearer prefix")
	}
	if _, ok := parseBearerToken("Bearer   "); ok {
		t.Fatal("expected parse failure for empty token")
	}
}

func TestAuthenticateReadsActor(t *testing.T) {
	a, err := Authenticator{}.Authenticate(testReq(map[string]string{
		OrgHeader: "org-1", UserHeader: "usr-1", RoleHeader: "admin, devOps,",
	}))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if a.OrgID != "org-1" || a.UserID != "usr-1" {
		t.Fatalf("unexpected actor: %+v", a)
	}
	if !a.HasRole("devOps") || a.HasRole("") || len(a.Roles) != 2 {
		t.Fatalf("unexpected roles: %v", a.Roles)
	}
}

func TestAuthenticateRequiresHeaders(t *testing.T) {
	if _, err := (Authenticator{}).Authenticate(testReq(map[string]string{OrgHeader: "org-1"})); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticateChecksServiceToken(t *testing.T) {
	au := Authenticator{ServiceToken: "s3cret"}
	base := map[string]string{OrgHeader: "org-1", UserHeader: "usr-1"}
	if _, err := au.Authenticate(testReq(base)); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized without token, got %v", err)
	}
	base["Authorization"] = "Bearer wrong"
	if _, err := au.Authenticate(testReq(base)); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for wrong token, got %v", err)
	}
	base["Authorization"] = "Bearer s3cret"
	if _, err := au.Authenticate(testReq(base)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{OrgID: "o", UserID: "u"})
	a, ok := FromContext(ctx)
	if !ok || a.OrgID != "o" {
		t.Fatalf("unexpected actor: %+v %v", a, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no actor")
	}
}

func TestClientIP(t *testing.T) {
	if got := ClientIP(testReq(nil)); got != "203.0.113.10" {
		t.Fatalf("unexpected ip: %s", got)
	}
	if got := ClientIP(testReq(map[string]string{"X-Forwarded-For": "198.51.100.5, 198.51.100.8"})); got != "198.51.100.5" {
		t.Fatalf("unexpected xff ip: %s", got)
	}
}
