package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/credential"
	"dauth-service/internal/device"
	"dauth-service/internal/encryption"
	"dauth-service/internal/hashing"
	"dauth-service/internal/identity"
	"dauth-service/internal/mail"
	"dauth-service/internal/model"
	"dauth-service/internal/otp"
	"dauth-service/internal/repository"
	"dauth-service/internal/session"
	"dauth-service/internal/token"
	"dauth-service/internal/util"
	"dauth-service/internal/validation"
)

var (
	ErrUserExists          = errors.New("email already registered")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type identityExchanger interface {
	Exchange(ctx context.Context, provider, code string) (*identity.Profile, error)
}

type eventRecorder interface {
	Record(event *model.AuthEvent)
}

// Credentials is the tagged input of Login-like flows: exactly one of Local
// or Profile is set.
type Credentials struct {
	Local   *LocalCredentials
	Profile *identity.Profile
}

type LocalCredentials struct {
	Email    string
	Password string
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	MiddleName      string
	LastName        string
}

// Result is what a successful authentication yields. RefreshToken goes into
// the http-only cookie, never the body.
type Result struct {
	User         *model.User
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// Service orchestrates the authentication flows over the session store, OTP
// store, token codec and user repository. Each flow fails fast; no partial
// state is committed on error.
type Service struct {
	cfg      *config.Config
	users    repository.UserRepository
	sessions *session.Store
	otps     *otp.Store
	codec    *token.Codec
	verifier *credential.Verifier
	hasher   *hashing.Hasher
	enc      *encryption.Manager
	exchange identityExchanger
	otpMail  *mail.OTPSender
	recorder eventRecorder
}

func NewService(
	cfg *config.Config,
	users repository.UserRepository,
	sessions *session.Store,
	otps *otp.Store,
	codec *token.Codec,
	verifier *credential.Verifier,
	hasher *hashing.Hasher,
	enc *encryption.Manager,
	exchange identityExchanger,
	otpMail *mail.OTPSender,
	recorder eventRecorder,
) *Service {
	return &Service{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		otps:     otps,
		codec:    codec,
		verifier: verifier,
		hasher:   hasher,
		enc:      enc,
		exchange: exchange,
		otpMail:  otpMail,
		recorder: recorder,
	}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput, fp device.Fingerprint) (*Result, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	email := util.NormalizeEmail(in.Email)
	passwordHash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	encrypted, keyID, err := s.enc.EncryptEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:          email,
		EmailHash:      s.enc.HashEmail(email),
		EmailEncrypted: encrypted,
		EmailKeyID:     keyID,
		PasswordHash:   passwordHash,
		FirstName:      util.SanitizeInput(in.FirstName),
		MiddleName:     util.SanitizeInput(in.MiddleName),
		LastName:       util.SanitizeInput(in.LastName),
		// Self-registered accounts start verified unless the deployment
		// gates logins on explicit verification.
		IsVerified: !s.cfg.Auth.RequireVerification,
	}
	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	result, err := s.grantSession(user, fp)
	if err != nil {
		return nil, err
	}

	s.record(model.EventRegister, user.UserID, result.SessionID, fp, "")
	return result, nil
}

// Login authenticates a tagged credential variant and grants a session.
func (s *Service) Login(ctx context.Context, creds Credentials, fp device.Fingerprint) (*Result, error) {
	switch {
	case creds.Local != nil:
		return s.loginLocal(creds.Local, fp)
	case creds.Profile != nil:
		return s.loginProfile(ctx, creds.Profile, fp)
	default:
		return nil, credential.ErrInvalidCredentials
	}
}

func (s *Service) loginLocal(creds *LocalCredentials, fp device.Fingerprint) (*Result, error) {
	user, err := s.verifier.Verify(util.NormalizeEmail(creds.Email), creds.Password)
	if err != nil {
		return nil, err
	}

	result, err := s.grantSession(user, fp)
	if err != nil {
		return nil, err
	}

	s.record(model.EventLogin, user.UserID, result.SessionID, fp, "")
	return result, nil
}

// OAuthLogin resolves the authorization code with the provider and signs the
// asserted identity in, creating the account on first contact.
func (s *Service) OAuthLogin(ctx context.Context, provider, code string, fp device.Fingerprint) (*Result, error) {
	profile, err := s.exchange.Exchange(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	return s.loginProfile(ctx, profile, fp)
}

func (s *Service) loginProfile(ctx context.Context, profile *identity.Profile, fp device.Fingerprint) (*Result, error) {
	user, err := s.users.GetUserByProvider(profile.Provider, profile.ID)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.adoptProfile(ctx, profile)
	}
	if err != nil {
		return nil, err
	}

	result, err := s.grantSession(user, fp)
	if err != nil {
		return nil, err
	}

	s.record(model.EventOAuthLogin, user.UserID, result.SessionID, fp, profile.Provider)
	return result, nil
}

// adoptProfile links the provider identity to an existing account with the
// same email, or creates a fresh password-less account.
func (s *Service) adoptProfile(ctx context.Context, profile *identity.Profile) (*model.User, error) {
	email := util.NormalizeEmail(profile.Email)

	if email != "" {
		existing, err := s.users.GetUserByEmail(s.enc.HashEmail(email))
		if err == nil {
			if linkErr := s.users.LinkProvider(existing.UserID, profile.Provider, profile.ID); linkErr != nil {
				return nil, linkErr
			}
			return existing, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	encrypted, keyID, err := s.enc.EncryptEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:          email,
		EmailHash:      s.enc.HashEmail(email),
		EmailEncrypted: encrypted,
		EmailKeyID:     keyID,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		IsVerified:     profile.Verified,
	}
	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}
	if err := s.users.LinkProvider(user.UserID, profile.Provider, profile.ID); err != nil {
		return nil, err
	}

	util.Info("Account created from provider profile",
		zap.String("user_id", user.UserID),
		zap.String("provider", profile.Provider))
	return user, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the stored
// token in place. Any mismatch between the token and the stored session
// reads as ErrInvalidRefreshToken; an expired session is deleted on the way.
func (s *Service) Refresh(ctx context.Context, refreshToken string, fp device.Fingerprint) (*Result, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil || !claims.IsRefresh() {
		return nil, ErrInvalidRefreshToken
	}

	sess, err := s.sessions.FindByRefreshToken(claims.UserID, refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if err := s.sessions.TouchAndValidate(sess); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	access, err := s.codec.IssueAccessToken(user.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefreshToken(user.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RotateRefreshToken(user.UserID, sess.SessionID, refresh); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	s.record(model.EventRefresh, user.UserID, sess.SessionID, fp, "")
	return &Result{
		User:         user,
		SessionID:    sess.SessionID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Logout removes the session named by a token (refresh or access). A stale
// or unknown token still counts as logged out.
func (s *Service) Logout(ctx context.Context, tokenString string, fp device.Fingerprint) error {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil
	}
	if err := s.sessions.Remove(claims.UserID, claims.SessionID); err != nil {
		return err
	}

	s.record(model.EventLogout, claims.UserID, claims.SessionID, fp, "")
	return nil
}

// LogoutAll revokes every device session of a user.
func (s *Service) LogoutAll(ctx context.Context, userID string, fp device.Fingerprint) error {
	if err := s.sessions.RemoveAll(userID); err != nil {
		return err
	}
	s.record(model.EventLogout, userID, "", fp, "all devices")
	return nil
}

// Sessions lists the user's live device sessions.
func (s *Service) Sessions(ctx context.Context, userID string) ([]model.Session, error) {
	return s.sessions.List(userID)
}

// ForgotPassword starts a password-reset challenge and emails the code. The
// returned correlation id goes into the client's cookie.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	ch, err := s.otps.Issue(user.UserID, model.OTPPurposePasswordReset)
	if err != nil {
		return "", err
	}

	if err := s.otpMail.SendCode(user.Email, user.FullName(), model.OTPPurposePasswordReset, ch.Code, s.cfg.OTP.TTL); err != nil {
		return "", err
	}

	s.record(model.EventOTPIssued, user.UserID, ch.SessionID, device.Fingerprint{}, string(model.OTPPurposePasswordReset))
	return ch.SessionID, nil
}

// ResendOTP rotates the in-flight reset code and emails it with its real
// remaining validity.
func (s *Service) ResendOTP(ctx context.Context, email, correlationID string) (string, error) {
	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	ch, remaining, err := s.otps.Resend(user.UserID, correlationID, model.OTPPurposePasswordReset)
	if err != nil {
		return "", err
	}

	if err := s.otpMail.SendCode(user.Email, user.FullName(), model.OTPPurposePasswordReset, ch.Code, remaining); err != nil {
		return "", err
	}

	s.record(model.EventOTPIssued, user.UserID, ch.SessionID, device.Fingerprint{}, "resend")
	return ch.SessionID, nil
}

// ResetPassword completes the reset flow. The challenge is consumed only
// after the new hash is persisted, so a storage failure leaves the code
// usable for a retry.
func (s *Service) ResetPassword(ctx context.Context, email, correlationID, code, newPassword, confirmPassword string) error {
	if err := validation.ValidateNewPassword(newPassword, confirmPassword); err != nil {
		return err
	}

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := s.otps.Validate(user.UserID, correlationID, model.OTPPurposePasswordReset, code); err != nil {
		return err
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(user.UserID, passwordHash); err != nil {
		return err
	}

	if err := s.otps.Consume(user.UserID, model.OTPPurposePasswordReset); err != nil {
		util.Warn("Failed to consume otp after password reset",
			zap.String("user_id", user.UserID),
			zap.Error(err))
	}

	s.record(model.EventPasswordReset, user.UserID, correlationID, device.Fingerprint{}, "")
	return nil
}

// grantSession records the device session and mints the token pair bound to
// it.
func (s *Service) grantSession(user *model.User, fp device.Fingerprint) (*Result, error) {
	var access string
	sess, err := s.sessions.AddOrUpdate(user.UserID, fp, func(sessionID string) (string, error) {
		var issueErr error
		access, issueErr = s.codec.IssueAccessToken(user.UserID, sessionID)
		if issueErr != nil {
			return "", issueErr
		}
		return s.codec.IssueRefreshToken(user.UserID, sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant session: %w", err)
	}

	return &Result{
		User:         user,
		SessionID:    sess.SessionID,
		AccessToken:  access,
		RefreshToken: sess.RefreshToken,
	}, nil
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(s.enc.HashEmail(util.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.Email == "" && len(user.EmailEncrypted) > 0 {
		decrypted, decErr := s.enc.DecryptEmail(ctx, user.EmailEncrypted)
		if decErr != nil {
			return nil, decErr
		}
		user.Email = decrypted
	}
	return user, nil
}

func (s *Service) record(eventType model.AuthEventType, userID, sessionID string, fp device.Fingerprint, details string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(&model.AuthEvent{
		UserID:      userID,
		EventType:   eventType,
		SessionID:   sessionID,
		Fingerprint: fp.ID,
		IP:          fp.IP,
		EventTime:   time.Now().UTC(),
		Details:     details,
	})
}
