package handler

import (
	"net/http"
	"strconv"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// UserHandler handles user management requests.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Phone    string          `json:"phone"`
	Role     domain.UserRole `json:"role"`
}

type updateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type userListResponse struct {
	Users []*domain.User `json:"users"`
	Total int64          `json:"total"`
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role := req.Role
	if role == "" {
		role = domain.RoleMember
	}

	out, err := h.users.CreateUser(r.Context(), service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     role,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.User)
}

// Get handles GET /api/users/{id}. Members may read their own record;
// anything else needs the user management capability.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	identity, err := auth.Authorize(r.Context(), auth.OpUserRead)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if identity.UserID != id {
		if _, err := auth.Authorize(r.Context(), auth.OpUserManage); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.users.UpdateUser(r.Context(), service.UpdateUserInput{
		UserID: id,
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out.User)
}

// Deactivate handles PUT /api/users/{id}/deactivate.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.users.DeactivateUser(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	out, err := h.users.ListUsers(r.Context(), service.ListUsersInput{Offset: offset, Limit: limit})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userListResponse{Users: out.Users, Total: out.Total})
}

// Search handles GET /api/users/search?q=.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("missing search query"))
		return
	}

	users, err := h.users.SearchUsers(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Counts handles GET /api/users/counts.
func (h *UserHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.users.CountByRole(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}
