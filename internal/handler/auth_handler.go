package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// AuthHandler handles registration, login, and token introspection.
type AuthHandler struct {
	authService *service.AuthService
	userService *service.UserService
	codec       *auth.TokenCodec
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, userService *service.UserService, codec *auth.TokenCodec) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		codec:       codec,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type verifyResponse struct {
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	UserID int64           `json:"user_id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Role   domain.UserRole `json:"role,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.authService.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.User)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: out.Token, User: out.User})
}

// Verify handles GET /api/auth/verify. It reports the standing of the
// presented token without gating anything; a missing or dead token is a
// 200 with valid=false, not an error.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(auth.AuthorizationHeader)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Reason: "no bearer token"})
		return
	}

	claims, err := h.codec.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Reason: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:  true,
		UserID: claims.UserID,
		Name:   claims.Name,
		Role:   claims.Role,
	})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Authorize(r.Context(), auth.OpPasswordChange)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err = h.userService.ChangePassword(r.Context(), service.ChangePasswordInput{
		UserID:          id.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		// A wrong current password is a 401 here, not a conflict.
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorResponse(err.Error()))
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}
