// Package authn extracts the acting organisation and user from requests forwarded by
// the platform gateway, which has already validated the end-user session.
package authn

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
)

const (
	OrgHeader  = "X-Org-Id"
	UserHeader = "X-User-Id"
	RoleHeader = "X-Roles"
)

var ErrUnauthorized = errors.New("unauthorized")

type Actor struct {
	OrgID  string
	UserID string
	Roles  []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// Authenticator checks the gateway's service token and reads the actor headers.
type Authenticator struct {
	// ServiceToken, when set, must be presented as a bearer token.
	ServiceToken string
}

func (au Authenticator) Authenticate(r *http.Request) (Actor, error) {
	if au.ServiceToken != "" {
		token, ok := parseBearerToken(r.Header.Get("Authorization"))
		if !ok || !tokenEqual(token, au.ServiceToken) {
			return Actor{}, ErrUnauthorized
		}
	}
	a := Actor{
		OrgID:  strings.TrimSpace(r.Header.Get(OrgHeader)),
		UserID: strings.TrimSpace(r.Header.Get(UserHeader)),
	}
	if a.OrgID == "" || a.UserID == "" {
		return Actor{}, ErrUnauthorized
	}
	for _, role := range strings.Split(r.Header.Get(RoleHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			a.Roles = append(a.Roles, role)
		}
	}
	return a, nil
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func tokenEqual(a, b string) bool {
	ha, hb := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
