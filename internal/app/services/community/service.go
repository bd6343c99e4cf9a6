// Package community serves the per-plan message feeds.
package community

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
)

// MaxMessageLength bounds a community post in characters.
const MaxMessageLength = 2000

// Service reads and writes plan community messages. Membership is checked
// by the route guard.
type Service struct {
	plans    storage.PlanStore
	messages storage.CommunityStore
	log      *logging.Logger
}

// New creates a community service.
func New(plans storage.PlanStore, messages storage.CommunityStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("community", "info", "json")
	}
	return &Service{plans: plans, messages: messages, log: log}
}

// Plans returns the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]plan.Plan, error) {
	plans, err := s.plans.ListPlans(ctx)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load plans", err)
	}
	return plans, nil
}

// List returns the feed of the plan with code.
func (s *Service) List(ctx context.Context, code string) ([]plan.Message, error) {
	p, err := s.plan(ctx, code)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListCommunityMessages(ctx, p.ID)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load messages", err)
	}
	if msgs == nil {
		msgs = []plan.Message{}
	}
	return msgs, nil
}

// Post appends a message from userID to the plan's feed.
func (s *Service) Post(ctx context.Context, code string, userID int64, content string) (plan.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return plan.Message{}, svcerrors.InvalidArgument("Message is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return plan.Message{}, svcerrors.InvalidArgument("Message is too long")
	}
	p, err := s.plan(ctx, code)
	if err != nil {
		return plan.Message{}, err
	}
	msg, err := s.messages.CreateCommunityMessage(ctx, plan.Message{UserID: userID, PlanID: p.ID, Content: content})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("plan", p.Code).Error("community post failed")
		return plan.Message{}, svcerrors.Internal("Failed to post message", err)
	}
	return msg, nil
}

func (s *Service) plan(ctx context.Context, code string) (plan.Plan, error) {
	p, err := s.plans.GetPlanByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
	if errors.Is(err, storage.ErrNotFound) {
		return plan.Plan{}, svcerrors.NotFound("Plan")
	}
	if err != nil {
		return plan.Plan{}, svcerrors.Internal("Failed to load plan", err)
	}
	return p, nil
}
