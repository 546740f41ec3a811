package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"dauth-service/internal/auth"
	"dauth-service/internal/credential"
	"dauth-service/internal/hashing"
	"dauth-service/internal/otp"
	"dauth-service/internal/token"
	"dauth-service/internal/user"
	"dauth-service/internal/util"
	"dauth-service/internal/validation"
)

// Response is the envelope every JSON endpoint writes. Business failures on
// envelope endpoints still travel with HTTP 200 and httpStatus "WARNING";
// protocol failures use the matching error status.
type Response struct {
	StatusCode int         `json:"statusCode"`
	HTTPStatus string      `json:"httpStatus"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func successResponse(message string, data interface{}) Response {
	return Response{
		StatusCode: http.StatusOK,
		HTTPStatus: "OK",
		Message:    message,
		Data:       data,
	}
}

// warningResponse reports a business failure without an error status, so
// clients render the message instead of treating the call as broken.
func warningResponse(message string) Response {
	return Response{
		StatusCode: http.StatusOK,
		HTTPStatus: "WARNING",
		Message:    message,
	}
}

func errorResponse(status int, message string) Response {
	return Response{
		StatusCode: status,
		HTTPStatus: http.StatusText(status),
		Message:    message,
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusCodeFor(err)
	if status == http.StatusInternalServerError {
		util.Error("Request failed", zap.Error(err))
		respondJSON(w, status, errorResponse(status, "Something went wrong"))
		return
	}
	respondJSON(w, status, errorResponse(status, err.Error()))
}

// statusCodeFor maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 and gets logged with its cause; mapped errors carry their own message.
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrEmailRequired),
		errors.Is(err, validation.ErrInvalidEmail),
		errors.Is(err, validation.ErrPasswordRequired),
		errors.Is(err, validation.ErrPasswordMismatch),
		errors.Is(err, validation.ErrWeakPassword),
		errors.Is(err, hashing.ErrPasswordTooLong),
		errors.Is(err, auth.ErrUserExists):
		return http.StatusBadRequest
	case errors.Is(err, credential.ErrInvalidCredentials),
		errors.Is(err, credential.ErrPasswordNotSet),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, user.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, otp.ErrMaxResendExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// isBusinessFailure tells the envelope endpoints which errors to downgrade to
// a 200 WARNING instead of an error status.
func isBusinessFailure(err error) bool {
	switch {
	case errors.Is(err, validation.ErrPasswordRequired),
		errors.Is(err, validation.ErrPasswordMismatch),
		errors.Is(err, validation.ErrWeakPassword),
		errors.Is(err, otp.ErrSessionExpired),
		errors.Is(err, otp.ErrInvalidOTP),
		errors.Is(err, otp.ErrMaxResendExceeded):
		return true
	default:
		return false
	}
}
