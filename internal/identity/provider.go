package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dauth-service/internal/config"
)

var ErrExchangeFailed = errors.New("identity exchange failed")

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// Profile is the provider-asserted identity of an OAuth login.
type Profile struct {
	Provider  string
	ID        string
	Email     string
	FirstName string
	LastName  string
	Verified  bool
}

// Provider exchanges OAuth authorization codes for user profiles. Only the
// code flow is supported; tokens never leave this package.
type Provider struct {
	config     *config.OAuthConfig
	httpClient *http.Client
	// endpoint overrides for tests
	googleTokenURL     string
	googleProfileURL   string
	facebookTokenURL   string
	facebookProfileURL string
}

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		config:             &cfg.OAuth,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		googleTokenURL:     "https://oauth2.googleapis.com/token",
		googleProfileURL:   "https://openidconnect.googleapis.com/v1/userinfo",
		facebookTokenURL:   "https://graph.facebook.com/v18.0/oauth/access_token",
		facebookProfileURL: "https://graph.facebook.com/v18.0/me?fields=id,email,first_name,last_name",
	}
}

// ConsentURL builds the provider's authorization page URL for the code flow.
func (p *Provider) ConsentURL(provider, state string) (string, error) {
	switch provider {
	case ProviderGoogle:
		if !p.config.EnableGoogleLogin {
			return "", fmt.Errorf("%w: google login disabled", ErrExchangeFailed)
		}
		q := url.Values{
			"client_id":     {p.config.GoogleClientID},
			"redirect_uri":  {p.config.GoogleCallbackURL},
			"response_type": {"code"},
			"scope":         {"openid email profile"},
			"state":         {state},
		}
		return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode(), nil
	case ProviderFacebook:
		if !p.config.EnableFacebookLogin {
			return "", fmt.Errorf("%w: facebook login disabled", ErrExchangeFailed)
		}
		q := url.Values{
			"client_id":     {p.config.FacebookAppID},
			"redirect_uri":  {p.config.FacebookCallbackURL},
			"response_type": {"code"},
			"scope":         {"email,public_profile"},
			"state":         {state},
		}
		return "https://www.facebook.com/v18.0/dialog/oauth?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrExchangeFailed, provider)
	}
}

// Exchange resolves an authorization code into a profile.
func (p *Provider) Exchange(ctx context.Context, provider, code string) (*Profile, error) {
	switch provider {
	case ProviderGoogle:
		if !p.config.EnableGoogleLogin {
			return nil, fmt.Errorf("%w: google login disabled", ErrExchangeFailed)
		}
		return p.exchangeGoogle(ctx, code)
	case ProviderFacebook:
		if !p.config.EnableFacebookLogin {
			return nil, fmt.Errorf("%w: facebook login disabled", ErrExchangeFailed)
		}
		return p.exchangeFacebook(ctx, code)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrExchangeFailed, provider)
	}
}

func (p *Provider) exchangeGoogle(ctx context.Context, code string) (*Profile, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.GoogleClientID},
		"client_secret": {p.config.GoogleClientSecret},
		"redirect_uri":  {p.config.GoogleCallbackURL},
		"grant_type":    {"authorization_code"},
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.postForm(ctx, p.googleTokenURL, form, &token); err != nil {
		return nil, err
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := p.getJSON(ctx, p.googleProfileURL, token.AccessToken, &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: empty google subject", ErrExchangeFailed)
	}

	return &Profile{
		Provider:  ProviderGoogle,
		ID:        info.Sub,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
		Verified:  info.EmailVerified,
	}, nil
}

func (p *Provider) exchangeFacebook(ctx context.Context, code string) (*Profile, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.FacebookAppID},
		"client_secret": {p.config.FacebookAppSecret},
		"redirect_uri":  {p.config.FacebookCallbackURL},
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.postForm(ctx, p.facebookTokenURL, form, &token); err != nil {
		return nil, err
	}

	var info struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := p.getJSON(ctx, p.facebookProfileURL, token.AccessToken, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: empty facebook id", ErrExchangeFailed)
	}

	return &Profile{
		Provider:  ProviderFacebook,
		ID:        info.ID,
		Email:     info.Email,
		FirstName: info.FirstName,
		LastName:  info.LastName,
		// Facebook only returns addresses it has confirmed.
		Verified: info.Email != "",
	}, nil
}

func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, out)
}

func (p *Provider) getJSON(ctx context.Context, endpoint, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return p.do(req, out)
}

func (p *Provider) do(req *http.Request, out interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider returned %s", ErrExchangeFailed, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return nil
}
