package auth_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/synetech/synepoints/auth"
)

// roundTripFunc lets a test intercept every outbound request, including
// the oauth2 token exchange that would otherwise hit Google.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newFakeGoogle(userinfoBody string, revoked *atomic.Int32) (*auth.Google, context.Context) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(r.URL.Path, "/token"):
			return jsonResponse(http.StatusOK,
				`{"access_token":"fake-access","token_type":"Bearer","expires_in":3600}`), nil
		case strings.Contains(r.URL.Path, "/userinfo"):
			return jsonResponse(http.StatusOK, userinfoBody), nil
		case strings.Contains(r.URL.Path, "/revoke"):
			if revoked != nil {
				revoked.Add(1)
			}
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})}

	g := auth.NewGoogle("client-id", "client-secret", "http://localhost/callback", "synetech.cz")
	g.Client = client
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	return g, ctx
}

func TestGoogle_AuthURL_PinsHostedDomain(t *testing.T) {
	g := auth.NewGoogle("client-id", "secret", "http://localhost/callback", "synetech.cz")

	u := g.AuthURL("state-123")
	assert.Contains(t, u, "hd=synetech.cz")
	assert.Contains(t, u, "state=state-123")
	assert.Contains(t, u, "client_id=client-id")
}

func TestGoogle_Exchange_InsiderAccepted(t *testing.T) {
	// GIVEN: a verified account inside the hosted domain
	// WHEN: the code is exchanged
	// THEN: the identity comes back and nothing is revoked

	var revoked atomic.Int32
	g, ctx := newFakeGoogle(
		`{"email":"dev@synetech.cz","verified_email":true,"hd":"synetech.cz"}`, &revoked)

	id, err := g.Exchange(ctx, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "dev@synetech.cz", id.Email)
	assert.True(t, id.Verified)
	assert.Zero(t, revoked.Load())
}

func TestGoogle_Exchange_OutsiderRevokedAndRejected(t *testing.T) {
	// GIVEN: an account from a foreign domain
	// WHEN: the code is exchanged
	// THEN: ErrDomainNotAllowed and the freshly issued token is revoked

	var revoked atomic.Int32
	g, ctx := newFakeGoogle(
		`{"email":"evil@example.com","verified_email":true,"hd":"example.com"}`, &revoked)

	_, err := g.Exchange(ctx, "auth-code")
	assert.ErrorIs(t, err, auth.ErrDomainNotAllowed)
	assert.Equal(t, int32(1), revoked.Load())
}

func TestGoogle_Exchange_MissingHostedDomainRejected(t *testing.T) {
	// Consumer accounts carry no hd claim at all.

	var revoked atomic.Int32
	g, ctx := newFakeGoogle(
		`{"email":"someone@gmail.com","verified_email":true}`, &revoked)

	_, err := g.Exchange(ctx, "auth-code")
	assert.ErrorIs(t, err, auth.ErrDomainNotAllowed)
	assert.Equal(t, int32(1), revoked.Load())
}
