// Package lifecycle applies administrative decisions to member requests and
// tells the member about them.
//
// A decision is one store write followed by one notifier call. The two are
// not wrapped in a transaction: the status change is committed first and a
// notifier failure is reported in the result without undoing or retrying it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/notification"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/support"
	"github.com/conthop/backend/internal/app/metrics"
	"github.com/conthop/backend/internal/app/services/notify"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/money"
)

// Notifier delivers notices to members.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice, channels ...notification.Channel) error
}

// Options tunes transition semantics.
type Options struct {
	// Strict only moves requests that are still pending. A second decision
	// on the same request fails with Conflict. When false, the update matches
	// by id alone, so repeated decisions succeed and notify again.
	Strict bool
}

// Result is the outcome of a transition. Record reflects the committed
// status. Notified is false when the notifier failed; NotifyErr holds the
// cause.
type Result struct {
	Record    request.Request
	Notified  bool
	NotifyErr error
}

// TicketResult is the outcome of a support reply.
type TicketResult struct {
	Ticket    support.Ticket
	Notified  bool
	NotifyErr error
}

// ReportResult is the outcome of a report reply.
type ReportResult struct {
	Report    support.Report
	Notified  bool
	NotifyErr error
}

// Manager applies status transitions and administrative replies.
type Manager struct {
	requests storage.RequestStore
	tickets  storage.SupportStore
	reports  storage.ReportStore
	notifier Notifier
	log      *logging.Logger
	strict   bool
}

// New creates a lifecycle manager.
func New(requests storage.RequestStore, tickets storage.SupportStore, reports storage.ReportStore, notifier Notifier, log *logging.Logger, opts Options) *Manager {
	if log == nil {
		log = logging.New("lifecycle", "info", "json")
	}
	return &Manager{
		requests: requests,
		tickets:  tickets,
		reports:  reports,
		notifier: notifier,
		log:      log,
		strict:   opts.Strict,
	}
}

// Strict reports whether transitions require a pending request.
func (m *Manager) Strict() bool { return m.strict }

// Transition applies action to the request of kind identified by rawID and
// notifies its owner. Admin privilege is enforced by the route guard in
// front of the manager; actor only has to be present.
func (m *Manager) Transition(ctx context.Context, rawKind, rawID string, action request.Action, actor *auth.Principal) (Result, error) {
	if actor == nil {
		return Result{}, svcerrors.Unauthorized("Authentication required")
	}
	kind, err := request.ParseKind(rawKind)
	if err != nil {
		return Result{}, svcerrors.InvalidArgument(err.Error())
	}
	id, ok := ParseID(rawID)
	if !ok {
		return Result{}, svcerrors.InvalidArgument(fmt.Sprintf("Invalid %s ID", kind))
	}
	if _, err := request.ParseAction(string(action)); err != nil {
		return Result{}, svcerrors.InvalidArgument(err.Error())
	}

	target := kind.TargetStatus(action)
	entry := m.log.WithContext(ctx).
		WithField("kind", kind).
		WithField("request_id", id).
		WithField("action", action).
		WithField("actor_id", actor.ID)

	rec, err := m.requests.UpdateRequestStatus(ctx, kind, id, target, m.strict)
	if err != nil {
		svcErr := m.transitionError(ctx, kind, id, action, err)
		metrics.RecordTransition(string(kind), string(target), string(svcErr.Code))
		if svcErr.Code == svcerrors.CodeInternal {
			entry.WithError(err).Error("request transition failed")
		} else {
			entry.WithField("code", svcErr.Code).Info("request transition refused")
		}
		return Result{}, svcErr
	}
	metrics.RecordTransition(string(kind), string(rec.Status), "ok")

	result := Result{Record: rec, Notified: true}
	notice := Notice(rec, action)
	if err := m.notifier.Notify(ctx, notice, Channels(kind)...); err != nil {
		result.Notified = false
		result.NotifyErr = err
		entry.WithError(err).Warn("status committed but owner notification failed")
	}

	entry.WithField("status", rec.Status).
		WithField("owner_id", rec.UserID).
		WithField("notified", result.Notified).
		Info("request transitioned")
	return result, nil
}

func (m *Manager) transitionError(ctx context.Context, kind request.Kind, id int64, action request.Action, err error) *svcerrors.ServiceError {
	if !errors.Is(err, storage.ErrNotFound) {
		return svcerrors.Internal(fmt.Sprintf("Failed to %s %s", action, kind), err)
	}
	if !m.strict {
		return svcerrors.NotFound(kind.Title())
	}
	current, getErr := m.requests.GetRequest(ctx, kind, id)
	switch {
	case errors.Is(getErr, storage.ErrNotFound):
		return svcerrors.NotFound(kind.Title())
	case getErr != nil:
		return svcerrors.Internal(fmt.Sprintf("Failed to %s %s", action, kind), getErr)
	default:
		return svcerrors.Conflict(fmt.Sprintf("%s has already been %s", kind.Title(), current.Status)).
			WithDetails("current_status", string(current.Status))
	}
}

// ReplySupport records an admin reply on a support ticket and notifies the
// member in-app.
func (m *Manager) ReplySupport(ctx context.Context, rawID, reply string, actor *auth.Principal) (TicketResult, error) {
	if actor == nil {
		return TicketResult{}, svcerrors.Unauthorized("Authentication required")
	}
	id, ok := ParseID(rawID)
	if !ok {
		return TicketResult{}, svcerrors.InvalidArgument("Invalid support request ID")
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return TicketResult{}, svcerrors.InvalidArgument("Reply is required")
	}

	ticket, err := m.tickets.ReplyTicket(ctx, id, reply)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return TicketResult{}, svcerrors.NotFound("Support request")
		}
		m.log.WithContext(ctx).WithError(err).WithField("ticket_id", id).Error("support reply failed")
		return TicketResult{}, svcerrors.Internal("Failed to reply to support request", err)
	}

	result := TicketResult{Ticket: ticket, Notified: true}
	err = m.notifier.Notify(ctx, notify.Notice{
		RecipientID: ticket.UserID,
		Title:       "Support Reply from Admin",
		Message:     reply,
	}, notification.ChannelInApp)
	if err != nil {
		result.Notified = false
		result.NotifyErr = err
		m.log.WithContext(ctx).WithError(err).WithField("ticket_id", id).Warn("support reply saved but notification failed")
	}
	return result, nil
}

// ReplyReport records an admin reply on a report, marks it reviewed and
// notifies the member in-app.
func (m *Manager) ReplyReport(ctx context.Context, rawID, reply string, actor *auth.Principal) (ReportResult, error) {
	if actor == nil {
		return ReportResult{}, svcerrors.Unauthorized("Authentication required")
	}
	id, ok := ParseID(rawID)
	if !ok {
		return ReportResult{}, svcerrors.InvalidArgument("Invalid report ID")
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ReportResult{}, svcerrors.InvalidArgument("Reply is required")
	}

	rep, err := m.reports.ReplyReport(ctx, id, reply)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ReportResult{}, svcerrors.NotFound("Report")
		}
		m.log.WithContext(ctx).WithError(err).WithField("report_id", id).Error("report reply failed")
		return ReportResult{}, svcerrors.Internal("Failed to reply to report", err)
	}

	result := ReportResult{Report: rep, Notified: true}
	err = m.notifier.Notify(ctx, notify.Notice{
		RecipientID: rep.UserID,
		Title:       "Report Reply from Admin",
		Message:     fmt.Sprintf("Regarding your %q report: %s", rep.Title, reply),
	}, notification.ChannelInApp)
	if err != nil {
		result.Notified = false
		result.NotifyErr = err
		m.log.WithContext(ctx).WithError(err).WithField("report_id", id).Warn("report reply saved but notification failed")
	}
	return result, nil
}

// ParseID accepts a positive base-10 integer.
func ParseID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] == '+' {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Channels returns the delivery channels for decisions on kind. Withdrawal
// outcomes are also emailed.
func Channels(kind request.Kind) []notification.Channel {
	if kind == request.KindWithdrawal {
		return []notification.Channel{notification.ChannelInApp, notification.ChannelEmail}
	}
	return []notification.Channel{notification.ChannelInApp}
}

// Notice builds the member-facing notice for a decision on rec.
func Notice(rec request.Request, action request.Action) notify.Notice {
	amount := money.Format(rec.Amount)
	approved := action == request.ActionApprove

	var title, message string
	switch rec.Kind {
	case request.KindLoan:
		if approved {
			title = "Loan Approved!"
			message = fmt.Sprintf("Your %s loan has been approved!", amount)
		} else {
			title = "Loan Rejected"
			message = fmt.Sprintf("We're sorry, your %s loan application was rejected.", amount)
		}
	case request.KindInvestment:
		if approved {
			title = "Investment Approved"
			message = fmt.Sprintf("Your investment of %s has been approved successfully.", amount)
		} else {
			title = "Investment Rejected"
			message = fmt.Sprintf("Your investment of %s has been rejected.", amount)
		}
	case request.KindContribution:
		if approved {
			title = "Contribution Approved"
			message = fmt.Sprintf("Your contribution of %s has been approved.", amount)
		} else {
			title = "Contribution Rejected"
			message = fmt.Sprintf("Your contribution of %s has been rejected.", amount)
		}
	case request.KindWithdrawal:
		if approved {
			title = "Withdrawal Approved"
			message = fmt.Sprintf("Your withdrawal request of %s has been approved.", amount)
		} else {
			title = "Withdrawal Rejected"
			message = fmt.Sprintf("Your withdrawal request of %s has been rejected.", amount)
		}
	}
	return notify.Notice{RecipientID: rec.UserID, Title: title, Message: message}
}

// Summary is the response message for a transition.
func (r Result) Summary(action request.Action) string {
	verb := "approved"
	if action == request.ActionReject {
		verb = "rejected"
	}
	msg := fmt.Sprintf("%s %s", r.Record.Kind.Title(), verb)
	if r.Notified {
		return msg + " & user notified!"
	}
	return msg + ", but the user could not be notified"
}
