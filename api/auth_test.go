package api

import (
	"errors"
	"testing"
	"time"
)

func newLocalAuth(t *testing.T, audience string) *Auth {
	t.Helper()
	t.Setenv(envLocalAuthMode, "hs256")
	t.Setenv(envLocalAuthSecret, "test-shared-secret")
	return NewAuth(nil, audience, "")
}

func TestLocalAuthRoundTrip(t *testing.T) {
	a := newLocalAuth(t, "")
	if !a.LocalMode {
		t.Fatal("expected local mode")
	}
	if a.Issuer != tokenIssuer {
		t.Fatalf("local mode should default the issuer, got %q", a.Issuer)
	}

	token, err := a.IssueToken("user-42")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	sub, err := a.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if sub != "user-42" {
		t.Fatalf("expected user-42, got %q", sub)
	}
}

func TestIssueTokenRequiresLocalMode(t *testing.T) {
	t.Setenv(envLocalAuthMode, "")
	a := NewAuth(nil, "", "")
	if a.LocalMode {
		t.Fatal("should not be in local mode")
	}
	if _, err := a.IssueToken("user-1"); err == nil {
		t.Fatal("expected an error outside local mode")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a := newLocalAuth(t, "")
	a.tokenTTL = -time.Hour

	token, err := a.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	a := newLocalAuth(t, "")
	token, err := a.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	t.Setenv(envLocalAuthSecret, "a-different-secret")
	other := NewAuth(nil, "", "")
	if _, err := other.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestAudienceMismatchRejected(t *testing.T) {
	issuing := newLocalAuth(t, "teamboard-web")
	token, err := issuing.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := issuing.UserIDFromAuthHeader("Bearer " + token); err != nil {
		t.Fatalf("matching audience rejected: %v", err)
	}

	verifying := NewAuth(nil, "some-other-api", "")
	if _, err := verifying.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("audience mismatch must be rejected")
	}
}

func TestBearerTokenFromString(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		err    error
	}{
		{name: "empty", header: "", err: errMissingAuthorization},
		{name: "blank", header: "   ", err: errMissingAuthorization},
		{name: "wrong scheme", header: "Token a.b.c", err: errBadAuthorization},
		{name: "no token", header: "Bearer ", err: errBadAuthorization},
		{name: "not a jwt", header: "Bearer opaque-token", err: errBadAuthorization},
		{name: "too many segments", header: "Bearer a.b.c.d", err: errBadAuthorization},
		{name: "ok", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "surrounding whitespace", header: "  Bearer a.b.c  ", want: "a.b.c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerTokenFromString(tc.header)
			if !errors.Is(err, tc.err) {
				t.Fatalf("error = %v, want %v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}
