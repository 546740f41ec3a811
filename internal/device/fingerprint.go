package device

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Fingerprint identifies a device class for session deduplication. Two
// logins from the same browser on the same machine produce the same
// fingerprint and therefore reuse one session slot.
type Fingerprint struct {
	ID      string // stable hash of the identifying parts
	Label   string // human-readable, e.g. "Chrome on Windows"
	IP      string
	OS      string
	Browser string
}

// FromRequest derives a fingerprint from the client address and User-Agent.
func FromRequest(r *http.Request) Fingerprint {
	ip := clientIP(r)
	ua := r.UserAgent()
	os := detectOS(ua)
	browser := detectBrowser(ua)

	h := murmur3.New64()
	h.Write([]byte(os))
	h.Write([]byte{0})
	h.Write([]byte(browser))
	h.Write([]byte{0})
	h.Write([]byte(ua))

	return Fingerprint{
		ID:      fmt.Sprintf("%016x", h.Sum64()),
		Label:   browser + " on " + os,
		IP:      ip,
		OS:      os,
		Browser: browser,
	}
}

func clientIP(r *http.Request) string {
	// The first hop in X-Forwarded-For is the original client when the
	// service sits behind a trusted proxy.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func detectOS(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "iOS"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func detectBrowser(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "edg/"):
		return "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		return "Opera"
	case strings.Contains(lower, "chrome/"):
		return "Chrome"
	case strings.Contains(lower, "firefox/"):
		return "Firefox"
	case strings.Contains(lower, "safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}
