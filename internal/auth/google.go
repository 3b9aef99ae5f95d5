package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/frahmantamala/crm-backend/internal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var ErrUnverifiedEmail = errors.New("oauth: provider email is not verified")

// Profile is what an identity provider tells us about the person signing in.
type Profile struct {
	ProviderID    string
	Email         string
	DisplayName   string
	AvatarURL     string
	VerifiedEmail bool
}

type IdentityProvider interface {
	AuthCodeURL(state string) string
	Profile(ctx context.Context, code string) (*Profile, error)
}

type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
	timeout     time.Duration
}

func NewGoogleProvider(cfg internal.OAuthConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		timeout:     10 * time.Second,
	}
}

// WithEndpoints overrides the provider URLs.
func (g *GoogleProvider) WithEndpoints(authURL, tokenURL, userInfoURL string) *GoogleProvider {
	g.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	g.userInfoURL = userInfoURL
	return g
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Profile exchanges code for a token and fetches the account profile.
func (g *GoogleProvider) Profile(ctx context.Context, code string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch profile: status %d: %s", resp.StatusCode, body)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("decode profile: missing id or email")
	}
	if !info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &Profile{
		ProviderID:    info.ID,
		Email:         info.Email,
		DisplayName:   info.Name,
		AvatarURL:     info.Picture,
		VerifiedEmail: info.VerifiedEmail,
	}, nil
}
