// google.go - Google OAuth sign-in with a hosted-domain restriction.
//
// The flow mirrors the classic web-app exchange: the SPA obtains an
// authorization code, posts it here, and we exchange it for an access
// token, fetch userinfo, and verify the account belongs to the
// configured Google Workspace domain. Outsider tokens are revoked
// immediately, not just rejected.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrDomainNotAllowed is returned for accounts outside the hosted domain.
var ErrDomainNotAllowed = errors.New("account outside the allowed domain")

const (
	defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultRevokeURL   = "https://accounts.google.com/o/oauth2/revoke"
)

// Identity is what the rest of the system trusts about a signed-in user.
type Identity struct {
	Email    string
	Verified bool
}

// Google performs the code exchange and domain check.
type Google struct {
	oauth        *oauth2.Config
	hostedDomain string

	// Overridable for tests.
	UserinfoURL string
	RevokeURL   string
	Client      *http.Client
}

func NewGoogle(clientID, clientSecret, redirectURL, hostedDomain string) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		hostedDomain: hostedDomain,
		UserinfoURL:  defaultUserinfoURL,
		RevokeURL:    defaultRevokeURL,
		Client:       http.DefaultClient,
	}
}

// AuthURL returns the consent-screen URL, pinned to the hosted domain.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("hd", g.hostedDomain))
}

type userinfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	HostedDomain  string `json:"hd"`
}

// Exchange trades the authorization code for the user's identity. A user
// outside the hosted domain gets their token revoked and
// ErrDomainNotAllowed back.
func (g *Google) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("oauth exchange: %w", err)
	}

	info, err := g.fetchUserinfo(ctx, tok)
	if err != nil {
		return Identity{}, err
	}

	if g.hostedDomain != "" && info.HostedDomain != g.hostedDomain {
		g.revoke(ctx, tok.AccessToken)
		return Identity{}, fmt.Errorf("%s: %w", info.Email, ErrDomainNotAllowed)
	}

	return Identity{Email: info.Email, Verified: info.VerifiedEmail}, nil
}

func (g *Google) fetchUserinfo(ctx context.Context, tok *oauth2.Token) (*userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(req)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	var info userinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

// revoke is best-effort: the sign-in is rejected either way.
func (g *Google) revoke(ctx context.Context, accessToken string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.RevokeURL+"?"+url.Values{"token": {accessToken}}.Encode(), nil)
	if err != nil {
		return
	}
	if resp, err := g.Client.Do(req); err == nil {
		resp.Body.Close()
	}
}
