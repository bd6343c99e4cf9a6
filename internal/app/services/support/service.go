// Package support accepts member support tickets and reports and lists them
// for administrators. Replies go through the lifecycle manager.
package support

import (
	"context"
	"strings"

	"github.com/conthop/backend/internal/app/domain/support"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
)

// Service opens tickets and files reports.
type Service struct {
	tickets storage.SupportStore
	reports storage.ReportStore
	log     *logging.Logger
}

// New creates a support service.
func New(tickets storage.SupportStore, reports storage.ReportStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("support", "info", "json")
	}
	return &Service{tickets: tickets, reports: reports, log: log}
}

// OpenTicket records a support message from userID.
func (s *Service) OpenTicket(ctx context.Context, userID int64, message string) (support.Ticket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return support.Ticket{}, svcerrors.InvalidArgument("Message is required")
	}
	t, err := s.tickets.CreateTicket(ctx, support.Ticket{UserID: userID, Message: message})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("support ticket failed")
		return support.Ticket{}, svcerrors.Internal("Failed to submit support request", err)
	}
	return t, nil
}

// FileReport records a titled report from userID.
func (s *Service) FileReport(ctx context.Context, userID int64, title, content string) (support.Report, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return support.Report{}, svcerrors.InvalidArgument("Title and content are required")
	}
	r, err := s.reports.CreateReport(ctx, support.Report{UserID: userID, Title: title, Content: content})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("report submission failed")
		return support.Report{}, svcerrors.Internal("Failed to submit report", err)
	}
	return r, nil
}

// ListTickets returns every ticket with its owner, newest first.
func (s *Service) ListTickets(ctx context.Context) ([]support.Ticket, error) {
	out, err := s.tickets.ListTickets(ctx)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load support requests", err)
	}
	return out, nil
}

// ListReports returns every report with its owner, newest first.
func (s *Service) ListReports(ctx context.Context) ([]support.Report, error) {
	out, err := s.reports.ListReports(ctx)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load reports", err)
	}
	return out, nil
}
