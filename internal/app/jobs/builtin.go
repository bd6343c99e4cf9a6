package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conthop/backend/internal/app/storage"
	"github.com/conthop/backend/internal/logging"
)

// Cleaner drops idle rate-limit state.
type Cleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// Emailer sends a direct email to a stored user.
type Emailer interface {
	Email(ctx context.Context, recipientID int64, subject, message string) error
}

// DigestSubject is the subject line of the pending requests email.
const DigestSubject = "Pending Requests"

// LimiterCleanup removes rate-limiter buckets idle for longer than maxIdle.
func LimiterCleanup(c Cleaner, maxIdle time.Duration, log *logging.Logger) Job {
	return JobFunc{JobName: "limiter_cleanup", Fn: func(ctx context.Context) error {
		removed := c.Cleanup(maxIdle)
		if removed > 0 {
			log.WithContext(ctx).WithField("removed", removed).Debug("rate limiter buckets removed")
		}
		return nil
	}}
}

// PendingDigest emails every admin how many requests await review. Nothing
// is sent when the queues are empty. The digest never creates in-app
// notifications.
func PendingDigest(stats storage.StatsStore, users storage.UserStore, mailer Emailer, log *logging.Logger) Job {
	return JobFunc{JobName: "pending_digest", Fn: func(ctx context.Context) error {
		st, err := stats.Stats(ctx)
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		if st.PendingTotal() == 0 {
			return nil
		}
		admins, err := users.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}
		message := DigestMessage(st)
		var failed []string
		for _, admin := range admins {
			if err := mailer.Email(ctx, admin.ID, DigestSubject, message); err != nil {
				failed = append(failed, fmt.Sprintf("%d: %v", admin.ID, err))
			}
		}
		log.WithContext(ctx).
			WithField("pending", st.PendingTotal()).
			WithField("admins", len(admins)).
			WithField("failed", len(failed)).
			Info("pending digest sent")
		if len(failed) > 0 {
			return fmt.Errorf("digest not delivered to %s", strings.Join(failed, "; "))
		}
		return nil
	}}
}

// DigestMessage summarises pending counts.
func DigestMessage(st storage.Stats) string {
	return fmt.Sprintf("%d requests await review: %d loans, %d investments, %d contributions, %d withdrawals.",
		st.PendingTotal(), st.PendingLoans, st.PendingInvestments, st.PendingContributions, st.PendingWithdrawals)
}
