package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/request"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/httputil"
)

// submission is the union of the member-supplied request fields.
type submission struct {
	Amount        decimal.Decimal  `json:"amount"`
	Purpose       string           `json:"purpose"`
	Duration      int              `json:"duration"`
	ProjectName   string           `json:"projectName"`
	Returns       *decimal.Decimal `json:"returns"`
	BankName      string           `json:"bankName"`
	AccountName   string           `json:"accountName"`
	AccountNumber string           `json:"accountNumber"`
}

func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		httputil.WriteServiceError(w, r, svcerrors.Unauthorized("Authentication required"))
		return nil, false
	}
	return p, true
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := h.app.Accounts.Profile(r.Context(), p.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    profile.User,
		"plans":   profile.Plans,
	})
}

func (h *handler) financialSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	summary, err := h.app.Accounts.FinancialSummary(r.Context(), p.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "summary": summary})
}

func (h *handler) submitRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	kind, err := request.ParseKind(segments[len(segments)-1])
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.InvalidArgument(err.Error()))
		return
	}
	var body submission
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	rec, err := h.app.Requests.Submit(r.Context(), request.Request{
		Kind:           kind,
		UserID:         p.ID,
		Amount:         body.Amount,
		Purpose:        body.Purpose,
		DurationMonths: body.Duration,
		ProjectName:    body.ProjectName,
		Returns:        body.Returns,
		BankName:       body.BankName,
		AccountName:    body.AccountName,
		AccountNumber:  body.AccountNumber,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"success": true,
		"message": kind.Title() + " request submitted",
	}
	resp[string(kind)] = rec
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *handler) listOwnRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	kind, views, err := h.app.Requests.ListForUser(r.Context(), mux.Vars(r)["kind"], p.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, kind.Plural(): views})
}

func (h *handler) fileReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	rep, err := h.app.Support.FileReport(r.Context(), p.ID, body.Title, body.Content)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Report submitted",
		"report":  rep,
	})
}

func (h *handler) openTicket(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	ticket, err := h.app.Support.OpenTicket(r.Context(), p.ID, body.Message)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Support request submitted",
		"ticket":  ticket,
	})
}

// listNotifications serves a member's inbox to that member or to an admin.
func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid user ID")
		return
	}
	if id != p.ID {
		caller, err := h.app.Guard.CurrentUser(r.Context())
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		if !caller.IsAdmin() {
			httputil.WriteServiceError(w, r, svcerrors.Forbidden("You can only view your own notifications"))
			return
		}
	}
	notes, err := h.app.Notifier.Inbox(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "notifications": notes})
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathInt64(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid notification ID")
		return
	}
	n, err := h.app.Notifier.MarkRead(r.Context(), id, p.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "notification": n})
}

func (h *handler) listCommunity(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.app.Community.List(r.Context(), mux.Vars(r)["plan"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "messages": msgs})
}

func (h *handler) postCommunity(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	msg, err := h.app.Community.Post(r.Context(), mux.Vars(r)["plan"], p.ID, body.Message)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "post": msg})
}
