package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dauth-service/internal/config"
)

func testProvider(t *testing.T) (*Provider, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "access-1"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "google-sub-1",
			"email":          "alice@example.com",
			"email_verified": true,
			"given_name":     "Alice",
			"family_name":    "Smith",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.OAuth.EnableGoogleLogin = true
	cfg.OAuth.GoogleClientID = "client-id"
	cfg.OAuth.GoogleClientSecret = "client-secret"

	p := NewProvider(cfg)
	p.googleTokenURL = srv.URL + "/token"
	p.googleProfileURL = srv.URL + "/userinfo"
	return p, srv
}

func TestExchangeGoogle(t *testing.T) {
	p, _ := testProvider(t)

	profile, err := p.Exchange(context.Background(), ProviderGoogle, "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.ID != "google-sub-1" || profile.Email != "alice@example.com" {
		t.Errorf("unexpected profile: %+v", profile)
	}
	if !profile.Verified {
		t.Error("expected verified profile")
	}
	if profile.FirstName != "Alice" || profile.LastName != "Smith" {
		t.Errorf("name mismatch: %+v", profile)
	}
}

func TestExchangeBadCode(t *testing.T) {
	p, _ := testProvider(t)

	if _, err := p.Exchange(context.Background(), ProviderGoogle, "bad-code"); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("expected ErrExchangeFailed, got %v", err)
	}
}

func TestExchangeDisabledProvider(t *testing.T) {
	p, _ := testProvider(t)

	if _, err := p.Exchange(context.Background(), ProviderFacebook, "good-code"); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("expected ErrExchangeFailed for disabled provider, got %v", err)
	}
}

func TestExchangeUnknownProvider(t *testing.T) {
	p, _ := testProvider(t)

	if _, err := p.Exchange(context.Background(), "github", "good-code"); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("expected ErrExchangeFailed for unknown provider, got %v", err)
	}
}
