package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/auth"
	"dauth-service/internal/config"
	"dauth-service/internal/credential"
	"dauth-service/internal/device"
	"dauth-service/internal/util"
)

// AuthHandler exposes the authentication flows over HTTP. Refresh tokens and
// the password-reset correlation id travel exclusively in http-only cookies.
type AuthHandler struct {
	cfg     *config.Config
	auth    *auth.Service
	consent consentURLBuilder
}

type consentURLBuilder interface {
	ConsentURL(provider, state string) (string, error)
}

func NewAuthHandler(cfg *config.Config, svc *auth.Service, consent consentURLBuilder) *AuthHandler {
	return &AuthHandler{
		cfg:     cfg,
		auth:    svc,
		consent: consent,
	}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/refresh-token", h.Refresh)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/resend-otp", h.ResendOTP)
	r.Post("/reset-password", h.ResetPassword)

	r.Get("/google", h.providerRedirect("google"))
	r.Get("/google/callback", h.providerCallback("google"))
	r.Get("/facebook", h.providerRedirect("facebook"))
	r.Get("/facebook/callback", h.providerCallback("facebook"))
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	MiddleName      string `json:"middleName"`
	LastName        string `json:"lastName"`
}

type authBody struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"accessToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}

	result, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		MiddleName:      req.MiddleName,
		LastName:        req.LastName,
	}, device.FromRequest(r))
	if err != nil {
		respondError(w, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	respondJSON(w, http.StatusCreated, Response{
		StatusCode: http.StatusCreated,
		HTTPStatus: "Created",
		Message:    "Account created",
		Data: authBody{
			ID:          result.User.UserID,
			Email:       result.User.Email,
			Name:        result.User.FullName(),
			AccessToken: result.AccessToken,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}

	result, err := h.auth.Login(r.Context(), auth.Credentials{
		Local: &auth.LocalCredentials{Email: req.Email, Password: req.Password},
	}, device.FromRequest(r))
	if errors.Is(err, credential.ErrAccountNotActive) {
		// Informational, not an authentication failure.
		respondJSON(w, http.StatusOK,
			warningResponse("Account is not active yet, contact an administrator"))
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}

	h.respondWithSession(w, result, "Logged in")
}

// Logout accepts the session's refresh cookie or a bearer access token and
// always reports success; repeating it is harmless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenString := h.readRefreshCookie(r)
	if tokenString == "" {
		tokenString = bearerToken(r)
	}

	if err := h.auth.Logout(r.Context(), tokenString, device.FromRequest(r)); err != nil {
		respondError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	respondJSON(w, http.StatusOK, successResponse("Logged out", nil))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokenString := h.readRefreshCookie(r)
	if tokenString == "" {
		respondJSON(w, http.StatusForbidden,
			errorResponse(http.StatusForbidden, "Missing refresh token"))
		return
	}

	result, err := h.auth.Refresh(r.Context(), tokenString, device.FromRequest(r))
	if err != nil {
		h.clearRefreshCookie(w)
		respondError(w, err)
		return
	}

	h.respondWithSession(w, result, "Token refreshed")
}

// Sessions lists the caller's live device sessions. Registered behind the
// Authenticator.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	sessions, err := h.auth.Sessions(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	type deviceSession struct {
		SessionID   string    `json:"sessionId"`
		Fingerprint string    `json:"fingerprint"`
		IP          string    `json:"ip"`
		CreatedAt   time.Time `json:"createdAt"`
		Current     bool      `json:"current"`
	}
	out := make([]deviceSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, deviceSession{
			SessionID:   s.SessionID,
			Fingerprint: s.Fingerprint,
			IP:          s.IP,
			CreatedAt:   s.CreatedAt,
			Current:     s.SessionID == claims.SessionID,
		})
	}
	respondJSON(w, http.StatusOK, successResponse("Active sessions", out))
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}

	correlationID, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		respondError(w, err)
		return
	}

	h.setOTPCookie(w, correlationID)
	respondJSON(w, http.StatusOK, successResponse("Verification code sent",
		map[string]string{"sessionId": correlationID}))
}

type resendOTPRequest struct {
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}

	correlationID := h.readOTPCookie(r)
	if correlationID == "" {
		correlationID = req.SessionID
	}

	newID, err := h.auth.ResendOTP(r.Context(), req.Email, correlationID)
	if err != nil {
		if isBusinessFailure(err) {
			h.clearOTPCookie(w)
			respondJSON(w, http.StatusOK, warningResponse(err.Error()))
			return
		}
		respondError(w, err)
		return
	}

	h.setOTPCookie(w, newID)
	respondJSON(w, http.StatusOK, successResponse("Verification code resent",
		map[string]string{"sessionId": newID}))
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	SessionID       string `json:"sessionId"`
	OTP             string `json:"otp"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}

	correlationID := h.readOTPCookie(r)
	if correlationID == "" {
		correlationID = req.SessionID
	}

	err := h.auth.ResetPassword(r.Context(), req.Email, correlationID, req.OTP,
		req.Password, req.ConfirmPassword)
	if err != nil {
		if isBusinessFailure(err) {
			respondJSON(w, http.StatusOK, warningResponse(err.Error()))
			return
		}
		respondError(w, err)
		return
	}

	h.clearOTPCookie(w)
	respondJSON(w, http.StatusOK, successResponse("Password has been reset", nil))
}

// providerRedirect sends the browser to the provider's consent page. The
// state parameter is a nonce mirrored in a short-lived cookie.
func (h *AuthHandler) providerRedirect(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := uuid.New().String()
		consentURL, err := h.consent.ConsentURL(provider, state)
		if err != nil {
			respondJSON(w, http.StatusNotFound,
				errorResponse(http.StatusNotFound, "Login method not available"))
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "oauthState",
			Value:    state,
			Path:     h.cfg.Cookie.Path,
			MaxAge:   int((5 * time.Minute).Seconds()),
			HttpOnly: true,
			Secure:   h.cfg.Cookie.Secure,
			SameSite: h.sameSite(),
		})
		http.Redirect(w, r, consentURL, http.StatusTemporaryRedirect)
	}
}

func (h *AuthHandler) providerCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		if cookie, err := r.Cookie("oauthState"); err != nil || cookie.Value == "" || cookie.Value != state {
			respondJSON(w, http.StatusForbidden,
				errorResponse(http.StatusForbidden, "OAuth state mismatch"))
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			respondJSON(w, http.StatusBadRequest,
				errorResponse(http.StatusBadRequest, "Missing authorization code"))
			return
		}

		result, err := h.auth.OAuthLogin(r.Context(), provider, code, device.FromRequest(r))
		if err != nil {
			util.Warn("OAuth login failed",
				zap.String("provider", provider),
				zap.Error(err))
			respondJSON(w, http.StatusUnauthorized,
				errorResponse(http.StatusUnauthorized, "Provider login failed"))
			return
		}

		h.respondWithSession(w, result, "Logged in")
	}
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, result *auth.Result, message string) {
	h.setRefreshCookie(w, result.RefreshToken)
	respondJSON(w, http.StatusOK, successResponse(message, authBody{
		ID:          result.User.UserID,
		Email:       result.User.Email,
		Name:        result.User.FullName(),
		AccessToken: result.AccessToken,
	}))
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (h *AuthHandler) sameSite() http.SameSite {
	switch h.cfg.Cookie.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.RefreshName,
		Value:    token,
		Domain:   h.cfg.Cookie.Domain,
		Path:     h.cfg.Cookie.Path,
		MaxAge:   int(h.cfg.JWT.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.sameSite(),
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.RefreshName,
		Value:    "",
		Domain:   h.cfg.Cookie.Domain,
		Path:     h.cfg.Cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.sameSite(),
	})
}

func (h *AuthHandler) readRefreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.cfg.Cookie.RefreshName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *AuthHandler) readOTPCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.cfg.Cookie.OTPSessionName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *AuthHandler) setOTPCookie(w http.ResponseWriter, correlationID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.OTPSessionName,
		Value:    correlationID,
		Domain:   h.cfg.Cookie.Domain,
		Path:     h.cfg.Cookie.Path,
		MaxAge:   int(h.cfg.OTP.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.sameSite(),
	})
}

func (h *AuthHandler) clearOTPCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.OTPSessionName,
		Value:    "",
		Domain:   h.cfg.Cookie.Domain,
		Path:     h.cfg.Cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.sameSite(),
	})
}
