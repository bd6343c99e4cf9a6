package httpapi

import (
	"net/http"

	"github.com/conthop/backend/internal/app/services/accounts"
	"github.com/conthop/backend/internal/httputil"
)

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	sess, err := h.app.Accounts.Register(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"message":   "User registered successfully",
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
		"user":      sess.User,
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	sess, err := h.app.Accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Login successful",
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
		"user":      sess.User,
	})
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if err := h.app.Accounts.ForgotPassword(r.Context(), body.Email); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If that email is registered, a reset link has been sent.",
	})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if err := h.app.Accounts.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password has been reset.",
	})
}
