package device

import (
	"net/http/httptest"
	"testing"
)

const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
const safariOnIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"

func TestFingerprintIsStablePerDevice(t *testing.T) {
	first := httptest.NewRequest("POST", "/auth/login", nil)
	first.Header.Set("User-Agent", chromeOnWindows)
	second := httptest.NewRequest("POST", "/auth/login", nil)
	second.Header.Set("User-Agent", chromeOnWindows)

	if FromRequest(first).ID != FromRequest(second).ID {
		t.Error("same user agent should produce the same fingerprint id")
	}
}

func TestFingerprintDiffersAcrossDevices(t *testing.T) {
	win := httptest.NewRequest("POST", "/auth/login", nil)
	win.Header.Set("User-Agent", chromeOnWindows)
	phone := httptest.NewRequest("POST", "/auth/login", nil)
	phone.Header.Set("User-Agent", safariOnIPhone)

	if FromRequest(win).ID == FromRequest(phone).ID {
		t.Error("different devices should produce different fingerprint ids")
	}
}

func TestFingerprintLabels(t *testing.T) {
	cases := []struct {
		ua    string
		label string
	}{
		{chromeOnWindows, "Chrome on Windows"},
		{safariOnIPhone, "Safari on iOS"},
		{"curl/8.4.0", "Unknown on Unknown"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("User-Agent", tc.ua)
		if got := FromRequest(r).Label; got != tc.label {
			t.Errorf("label for %q = %q, want %q", tc.ua, got, tc.label)
		}
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:52000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := FromRequest(r).IP; got != "203.0.113.7" {
		t.Errorf("IP = %q, want 203.0.113.7", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.9:41000"

	if got := FromRequest(r).IP; got != "192.0.2.9" {
		t.Errorf("IP = %q, want 192.0.2.9", got)
	}
}
