package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/conthop/backend/internal/app/domain/notification"
	"github.com/conthop/backend/internal/app/metrics"
	"github.com/conthop/backend/internal/app/storage"
	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/mail"
)

// Mode selects how email deliveries are dispatched.
type Mode string

const (
	// ModeInline blocks the caller until the email transport returns.
	ModeInline Mode = "inline"
	// ModeBackground hands emails to a bounded worker queue with retries.
	ModeBackground Mode = "background"
)

// ErrQueueFull is logged when a background email is dropped.
var ErrQueueFull = errors.New("notify: email queue full")

// Notice is a message addressed to one user.
type Notice struct {
	RecipientID int64
	Title       string
	Message     string
}

// Options tunes dispatch.
type Options struct {
	Mode      Mode
	QueueSize int
	Workers   int
	Retries   int
	Backoff   time.Duration
}

type emailJob struct {
	msg         mail.Message
	recipientID int64
	traceID     string
}

// Service delivers notices over the in-app and email channels.
type Service struct {
	notes     storage.NotificationStore
	users     storage.UserStore
	transport mail.Transport
	log       *logging.Logger
	opts      Options

	queue   chan emailJob
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a notifier. A nil transport disables email.
func New(notes storage.NotificationStore, users storage.UserStore, transport mail.Transport, log *logging.Logger, opts Options) *Service {
	if log == nil {
		log = logging.New("notify", "info", "json")
	}
	if opts.Mode == "" {
		opts.Mode = ModeInline
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	s := &Service{notes: notes, users: users, transport: transport, log: log, opts: opts}
	if opts.Mode == ModeBackground {
		s.queue = make(chan emailJob, opts.QueueSize)
	}
	return s
}

// Mode reports the configured dispatch mode.
func (s *Service) Mode() Mode { return s.opts.Mode }

// Start launches the background email workers. It is a no-op in inline mode.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil || s.started {
		return
	}
	s.started = true
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log.WithField("workers", s.opts.Workers).
		WithField("queue_size", s.opts.QueueSize).
		Info("email workers started")
}

// Close stops accepting background emails and waits for the queue to drain.
func (s *Service) Close() {
	s.mu.Lock()
	if s.queue == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

// Notify delivers n on every requested channel. An in-app failure is
// returned. Email failures are logged and counted only.
func (s *Service) Notify(ctx context.Context, n Notice, channels ...notification.Channel) error {
	n.Title = strings.TrimSpace(n.Title)
	if n.RecipientID <= 0 {
		return fmt.Errorf("recipient id is required")
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	n.Title = truncate(n.Title, notification.MaxTitleLength)

	for _, ch := range channels {
		switch ch {
		case notification.ChannelInApp:
			if err := s.inApp(ctx, n); err != nil {
				return err
			}
		case notification.ChannelEmail:
			s.email(ctx, n)
		default:
			return fmt.Errorf("unsupported channel %q", ch)
		}
	}
	return nil
}

// Email sends a one-off email to a user and returns any failure. It is used
// where the email is the whole operation.
func (s *Service) Email(ctx context.Context, recipientID int64, subject, message string) error {
	msg, err := s.buildEmail(ctx, recipientID, subject, message)
	if err != nil {
		metrics.RecordNotification(string(notification.ChannelEmail), false)
		return err
	}
	err = s.send(ctx, msg)
	metrics.RecordNotification(string(notification.ChannelEmail), err == nil)
	return err
}

func (s *Service) inApp(ctx context.Context, n Notice) error {
	_, err := s.notes.CreateNotification(ctx, notification.Notification{
		UserID:  n.RecipientID,
		Title:   n.Title,
		Message: n.Message,
	})
	metrics.RecordNotification(string(notification.ChannelInApp), err == nil)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Service) email(ctx context.Context, n Notice) {
	entry := s.log.WithContext(ctx).WithField("recipient_id", n.RecipientID).WithField("title", n.Title)

	msg, err := s.buildEmail(ctx, n.RecipientID, n.Title, n.Message)
	if err != nil {
		metrics.RecordNotification(string(notification.ChannelEmail), false)
		entry.WithError(err).Warn("email notification skipped")
		return
	}

	if s.queue != nil {
		if err := s.enqueue(emailJob{msg: msg, recipientID: n.RecipientID, traceID: logging.GetTraceID(ctx)}); err != nil {
			metrics.RecordNotification(string(notification.ChannelEmail), false)
			entry.WithError(err).Warn("email notification dropped")
		}
		return
	}

	err = s.send(ctx, msg)
	metrics.RecordNotification(string(notification.ChannelEmail), err == nil)
	if err != nil {
		entry.WithError(err).Warn("email notification failed")
	}
}

func (s *Service) buildEmail(ctx context.Context, recipientID int64, subject, message string) (mail.Message, error) {
	if s.transport == nil {
		return mail.Message{}, fmt.Errorf("no mail transport configured")
	}
	recipient, err := s.users.GetUser(ctx, recipientID)
	if err != nil {
		return mail.Message{}, fmt.Errorf("look up recipient: %w", err)
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return mail.Message{}, fmt.Errorf("recipient %d has no email address", recipientID)
	}
	body, err := mail.RenderHTML(recipient.Name, message)
	if err != nil {
		return mail.Message{}, err
	}
	return mail.Message{To: recipient.Email, Subject: subject, HTML: body}, nil
}

func (s *Service) send(ctx context.Context, msg mail.Message) error {
	if err := s.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s transport: %w", s.transport.Name(), err)
	}
	return nil
}

func (s *Service) enqueue(job emailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueFull
	}
	select {
	case s.queue <- job:
		metrics.SetEmailQueueDepth(len(s.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for job := range s.queue {
		metrics.SetEmailQueueDepth(len(s.queue))
		s.deliver(ctx, job)
	}
}

// deliver attempts the email up to Retries+1 times with linear backoff.
func (s *Service) deliver(ctx context.Context, job emailJob) {
	jobCtx := logging.WithTraceID(context.WithoutCancel(ctx), job.traceID)
	entry := s.log.WithContext(jobCtx).WithField("recipient_id", job.recipientID).WithField("subject", job.msg.Subject)

	var err error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 && s.opts.Backoff > 0 {
			select {
			case <-ctx.Done():
				entry.WithError(ctx.Err()).Warn("email delivery abandoned")
				metrics.RecordNotification(string(notification.ChannelEmail), false)
				return
			case <-time.After(s.opts.Backoff * time.Duration(attempt)):
			}
		}
		if err = s.send(jobCtx, job.msg); err == nil {
			metrics.RecordNotification(string(notification.ChannelEmail), true)
			return
		}
		entry.WithError(err).WithField("attempt", attempt+1).Debug("email delivery attempt failed")
	}
	metrics.RecordNotification(string(notification.ChannelEmail), false)
	entry.WithError(err).WithField("attempts", s.opts.Retries+1).Warn("email notification failed")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
