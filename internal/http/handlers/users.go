package handlers

import (
	"net/http"

	"github.com/pribylovaa/user-intake/internal/http/middleware"
	"github.com/pribylovaa/user-intake/internal/service"
)

// RegisterUserRequest — тело POST /users.
type RegisterUserRequest struct {
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// RegisterUserResponse — подтверждение сохранения записи.
type RegisterUserResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// RegisterUser — POST /users.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrUnauthenticated)
		return
	}

	var in *RegisterUserRequest
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	// Тело "null" разбирается без ошибки, но полей в нём нет.
	if in == nil {
		h.writeError(w, r, service.ErrInvalidInput)
		return
	}

	rec, err := h.Users.Register(r.Context(), p, service.RegisterInput{
		UserName:  in.UserName,
		UserEmail: in.UserEmail,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Metrics.IncRequest("stored")
	writeJSON(w, http.StatusOK, RegisterUserResponse{
		Message:  "Hello, " + rec.UserName + ". User record stored.",
		ID:       rec.ID,
		UserName: rec.UserName,
	})
}
