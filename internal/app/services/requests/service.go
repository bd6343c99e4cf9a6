// Package requests accepts member submissions of loans, investments,
// contributions and withdrawals and serves the admin queues.
package requests

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
)

// Service submits and lists financial requests.
type Service struct {
	store storage.RequestStore
	log   *logging.Logger
}

// New creates a requests service.
func New(store storage.RequestStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("requests", "info", "json")
	}
	return &Service{store: store, log: log}
}

// Submit validates and stores a new pending request for req.UserID.
func (s *Service) Submit(ctx context.Context, req request.Request) (request.Request, error) {
	req.ID = 0
	req.Status = request.StatusPending
	switch {
	case req.Kind != request.KindInvestment:
		req.Returns = nil
	case req.Returns == nil:
		zero := decimal.Zero
		req.Returns = &zero
	}
	if err := req.Validate(); err != nil {
		return request.Request{}, svcerrors.InvalidArgument(err.Error())
	}
	created, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("kind", req.Kind).Error("request submission failed")
		return request.Request{}, svcerrors.Internal("Failed to submit "+string(req.Kind), err)
	}
	s.log.WithContext(ctx).
		WithField("kind", created.Kind).
		WithField("request_id", created.ID).
		WithField("user_id", created.UserID).
		Info("request submitted")
	return created, nil
}

// List returns requests of rawKind for the admin queue, optionally filtered
// by status.
func (s *Service) List(ctx context.Context, rawKind, rawStatus string) (request.Kind, []request.View, error) {
	kind, err := request.ParseKind(rawKind)
	if err != nil {
		return "", nil, svcerrors.InvalidArgument(err.Error())
	}
	var filter request.Filter
	if rawStatus != "" {
		status, err := request.ParseStatus(rawStatus)
		if err != nil {
			return "", nil, svcerrors.InvalidArgument(err.Error())
		}
		filter.Status = status
	}
	views, err := s.store.ListRequests(ctx, kind, filter)
	if err != nil {
		return "", nil, svcerrors.Internal("Server error fetching "+kind.Plural(), err)
	}
	return kind, views, nil
}

// ListForUser returns the caller's own requests of rawKind, newest first.
func (s *Service) ListForUser(ctx context.Context, rawKind string, userID int64) (request.Kind, []request.View, error) {
	kind, err := request.ParseKind(rawKind)
	if err != nil {
		return "", nil, svcerrors.InvalidArgument(err.Error())
	}
	views, err := s.store.ListRequests(ctx, kind, request.Filter{UserID: userID})
	if err != nil {
		return "", nil, svcerrors.Internal("Failed to load "+kind.Plural(), err)
	}
	return kind, views, nil
}
