package model

import "time"

// -------------------- USER MODEL --------------------

// User is the identity root. Email is unique across all users; the hash is
// the lookup key and the encrypted form is what lands in the store.
type User struct {
	UserBucket     int        `json:"-" db:"user_bucket"`
	UserID         string     `json:"user_id" db:"user_id"` // UUID
	Email          string     `json:"email" db:"-"`         // decrypted at read time
	EmailHash      string     `json:"-" db:"email_hash"`
	EmailEncrypted []byte     `json:"-" db:"email_encrypted"`
	EmailKeyID     string     `json:"-" db:"email_key_id"`
	PasswordHash   string     `json:"-" db:"password_hash"` // empty for OAuth-only accounts
	GoogleID       string     `json:"-" db:"google_id"`
	FacebookID     string     `json:"-" db:"facebook_id"`
	FirstName      string     `json:"first_name,omitempty" db:"first_name"`
	MiddleName     string     `json:"middle_name,omitempty" db:"middle_name"`
	LastName       string     `json:"last_name,omitempty" db:"last_name"`
	IsVerified     bool       `json:"is_verified" db:"is_verified"`
	IsAdmin        bool       `json:"is_admin" db:"is_admin"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// FullName joins the name parts, skipping empty ones.
func (u *User) FullName() string {
	name := u.FirstName
	if u.MiddleName != "" {
		if name != "" {
			name += " "
		}
		name += u.MiddleName
	}
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}

// -------------------- SESSION MODEL --------------------

// Session binds one authenticated device to a rotating refresh token.
// At most the configured session cap exists per user; the oldest by
// CreatedAt is evicted first. CreatedAt is never refreshed on use, so a
// session has a hard lifetime regardless of activity.
type Session struct {
	UserID       string    `json:"user_id" db:"user_id"`
	SessionID    string    `json:"session_id" db:"session_id"` // UUID
	RefreshToken string    `json:"-" db:"refresh_token"`       // current value, rotates on refresh
	Fingerprint  string    `json:"fingerprint" db:"fingerprint"`
	IP           string    `json:"ip" db:"ip"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// -------------------- OTP CHALLENGE MODEL --------------------

// OTPPurpose tags what a one-time code authorizes.
type OTPPurpose string

const (
	OTPPurposePasswordReset OTPPurpose = "password-reset"
	OTPPurposeEmailVerify   OTPPurpose = "email-verify"
	OTPPurposePhoneVerify   OTPPurpose = "phone-verify"
	OTPPurposeTwoFactor     OTPPurpose = "2fa"
)

// OTPChallenge is one in-flight one-time code. SessionID here is the opaque
// correlation id a client holds across issue -> resend -> validate; it is
// unrelated to the login Session.
type OTPChallenge struct {
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Code      string     `json:"code"` // 6 ASCII digits
	Purpose   OTPPurpose `json:"purpose"`
	SendCount int        `json:"send_count"` // 1 on issue, incremented per resend
	CreatedAt time.Time  `json:"created_at"`
}

// -------------------- AUTH EVENT MODEL --------------------

// AuthEventType enumerates the security events emitted by the auth flows.
type AuthEventType string

const (
	EventRegister      AuthEventType = "register"
	EventLogin         AuthEventType = "login"
	EventOAuthLogin    AuthEventType = "oauth_login"
	EventRefresh       AuthEventType = "token_refresh"
	EventLogout        AuthEventType = "logout"
	EventOTPIssued     AuthEventType = "otp_issued"
	EventPasswordReset AuthEventType = "password_reset"
)

// AuthEvent is the audit record written to ClickHouse, published to Kafka
// and indexed in Elasticsearch.
type AuthEvent struct {
	EventBucket int           `json:"event_bucket" db:"event_bucket"`
	UserID      string        `json:"user_id" db:"user_id"`
	EventType   AuthEventType `json:"event_type" db:"event_type"`
	SessionID   string        `json:"session_id" db:"session_id"`
	Fingerprint string        `json:"fingerprint" db:"fingerprint"`
	IP          string        `json:"ip" db:"ip"`
	EventTime   time.Time     `json:"event_time" db:"event_time"`
	Details     string        `json:"details" db:"details"`
}
