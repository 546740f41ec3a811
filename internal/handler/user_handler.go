package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dauth-service/internal/model"
	"dauth-service/internal/user"
)

// UserHandler exposes account management. Every route sits behind the
// Authenticator; the moderation routes additionally require the admin flag,
// enforced by the service.
type UserHandler struct {
	users *user.Service
}

func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Patch("/me/profile", h.UpdateProfile)
	r.Delete("/me", h.DeleteMe)

	r.Patch("/{userID}/verification", h.SetVerified)
	r.Patch("/{userID}/admin", h.SetAdmin)
}

// userBody is the wire shape of an account; the password hash and encryption
// material never leave the service.
type userBody struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	FirstName  string     `json:"firstName,omitempty"`
	MiddleName string     `json:"middleName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	IsVerified bool       `json:"isVerified"`
	IsAdmin    bool       `json:"isAdmin"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

func toUserBody(u *model.User) userBody {
	return userBody{
		ID:         u.UserID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		MiddleName: u.MiddleName,
		LastName:   u.LastName,
		IsVerified: u.IsVerified,
		IsAdmin:    u.IsAdmin,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	u, err := h.users.Get(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse("Profile", toUserBody(u)))
}

type updateProfileRequest struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, warningResponse("Invalid request body"))
		return
	}
	if req.FirstName == "" {
		respondJSON(w, http.StatusOK, warningResponse("First name is required"))
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), claims.UserID,
		req.FirstName, req.MiddleName, req.LastName)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse("Profile updated", toUserBody(u)))
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	if err := h.users.Delete(r.Context(), claims.UserID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse("Account deleted", nil))
}

type setVerifiedRequest struct {
	Verified bool `json:"verified"`
}

func (h *UserHandler) SetVerified(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	var req setVerifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, warningResponse("Invalid request body"))
		return
	}

	targetID := chi.URLParam(r, "userID")
	if err := h.users.SetVerified(r.Context(), claims.UserID, targetID, req.Verified); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse("Verification flag updated", nil))
}

type setAdminRequest struct {
	IsAdmin bool `json:"isAdmin"`
}

func (h *UserHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized,
			errorResponse(http.StatusUnauthorized, "Missing access token"))
		return
	}

	var req setAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, warningResponse("Invalid request body"))
		return
	}

	targetID := chi.URLParam(r, "userID")
	if err := h.users.SetAdmin(r.Context(), claims.UserID, targetID, req.IsAdmin); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse("Admin flag updated", nil))
}
