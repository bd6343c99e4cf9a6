package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/httputil"
)

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	kind, views, err := h.app.Requests.List(r.Context(), mux.Vars(r)["kind"], r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, kind.Plural(): views})
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, request.ActionApprove)
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, request.ActionReject)
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request, action request.Action) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	result, err := h.app.Lifecycle.Transition(r.Context(), vars["kind"], vars["id"], action, p)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"success":  true,
		"message":  result.Summary(action),
		"notified": result.Notified,
	}
	resp[string(result.Record.Kind)] = result.Record
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Accounts.Stats(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"stats":        st,
		"pendingTotal": st.PendingTotal(),
	})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.Accounts.ListUsers(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": users})
}

func (h *handler) userDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	detail, err := h.app.Accounts.UserDetail(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"user":     detail.User,
		"requests": detail.Requests,
	})
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	deleted, err := h.app.Accounts.DeleteUser(r.Context(), id, p.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "User deleted",
		"user":    deleted,
	})
}

func (h *handler) setUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	u, err := h.app.Accounts.SetStatus(r.Context(), id, body.Status)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "User status updated to " + string(u.Status),
		"user":    u,
	})
}

func (h *handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	u, err := h.app.Accounts.SetRole(r.Context(), id, body.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "User role updated to " + string(u.Role),
		"user":    u,
	})
}

func (h *handler) notifyUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	var body struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	u, err := h.app.Accounts.NotifyUser(r.Context(), id, body.Subject, body.Message)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email sent to " + u.Email,
	})
}

func (h *handler) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.app.Support.ListTickets(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tickets": tickets})
}

func (h *handler) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.app.Support.ListReports(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "reports": reports})
}

type replyBody struct {
	Reply string `json:"reply"`
}

func (h *handler) replyTicket(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body replyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	result, err := h.app.Lifecycle.ReplySupport(r.Context(), mux.Vars(r)["id"], body.Reply, p)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  replyMessage("Reply sent", result.Notified),
		"ticket":   result.Ticket,
		"notified": result.Notified,
	})
}

func (h *handler) replyReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body replyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	result, err := h.app.Lifecycle.ReplyReport(r.Context(), mux.Vars(r)["id"], body.Reply, p)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  replyMessage("Report reviewed", result.Notified),
		"report":   result.Report,
		"notified": result.Notified,
	})
}

func replyMessage(prefix string, notified bool) string {
	if notified {
		return prefix + " & user notified!"
	}
	return prefix + ", but the user could not be notified"
}
