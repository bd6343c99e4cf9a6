package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/app/domain/notification"
	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/support"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// Every operation is counted, and a one-shot error can be injected per
// operation name.
type Store struct {
	mu      sync.Mutex
	nextID  map[string]int64
	calls   map[string]int
	nextErr map[string]error
	now     func() time.Time

	users         map[int64]user.User
	requests      map[request.Kind]map[int64]request.Request
	notifications map[int64]notification.Notification
	plans         map[int64]plan.Plan
	userPlans     map[int64]map[int64]struct{}
	messages      []plan.Message
	tickets       map[int64]support.Ticket
	reports       map[int64]support.Report
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{
		nextID:        make(map[string]int64),
		calls:         make(map[string]int),
		nextErr:       make(map[string]error),
		now:           func() time.Time { return time.Now().UTC() },
		users:         make(map[int64]user.User),
		requests:      make(map[request.Kind]map[int64]request.Request),
		notifications: make(map[int64]notification.Notification),
		plans:         make(map[int64]plan.Plan),
		userPlans:     make(map[int64]map[int64]struct{}),
		tickets:       make(map[int64]support.Ticket),
		reports:       make(map[int64]support.Report),
	}
	for _, k := range request.Kinds {
		s.requests[k] = make(map[int64]request.Request)
	}
	return s
}

// SetErr makes the next call to op fail with err.
func (s *Store) SetErr(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of store operations invoked so far.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// ResetCalls clears the call counters.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *Store) enterLocked(op string) error {
	s.calls[op]++
	if err, ok := s.nextErr[op]; ok {
		delete(s.nextErr, op)
		return err
	}
	return nil
}

func (s *Store) nextIDLocked(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateUser"); err != nil {
		return user.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return user.User{}, storage.ErrConflict
		}
	}
	u.Email = email
	if u.ID == 0 {
		u.ID = s.nextIDLocked("users")
	} else if u.ID > s.nextID["users"] {
		s.nextID["users"] = u.ID
	}
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	if u.Status == "" {
		u.Status = user.StatusActive
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("GetUser"); err != nil {
		return user.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("GetUserByEmail"); err != nil {
		return user.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListUsers"); err != nil {
		return nil, err
	}
	return s.sortedUsersLocked(func(user.User) bool { return true }), nil
}

func (s *Store) ListAdmins(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListAdmins"); err != nil {
		return nil, err
	}
	return s.sortedUsersLocked(func(u user.User) bool { return u.IsAdmin() }), nil
}

func (s *Store) sortedUsersLocked(keep func(user.User) bool) []user.User {
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// DeleteUser removes the user row only. Requests, notifications and messages
// keep their dangling owner reference.
func (s *Store) DeleteUser(_ context.Context, id int64) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("DeleteUser"); err != nil {
		return user.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userPlans, id)
	return u, nil
}

func (s *Store) SetUserStatus(_ context.Context, id int64, status user.Status) (user.User, error) {
	return s.mutateUser("SetUserStatus", id, func(u *user.User) { u.Status = status })
}

func (s *Store) SetUserRole(_ context.Context, id int64, role user.Role) (user.User, error) {
	return s.mutateUser("SetUserRole", id, func(u *user.User) { u.Role = role })
}

func (s *Store) SetResetToken(_ context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	_, err := s.mutateUser("SetResetToken", id, func(u *user.User) {
		u.ResetTokenHash = tokenHash
		exp := expiresAt
		u.ResetExpiresAt = &exp
	})
	return err
}

func (s *Store) ResetPassword(_ context.Context, tokenHash, passwordHash string, now time.Time) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ResetPassword"); err != nil {
		return user.User{}, err
	}
	for id, u := range s.users {
		if u.ResetTokenHash == "" || u.ResetTokenHash != tokenHash {
			continue
		}
		if u.ResetExpiresAt == nil || !u.ResetExpiresAt.After(now) {
			return user.User{}, storage.ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetExpiresAt = nil
		u.UpdatedAt = s.now()
		s.users[id] = u
		return u, nil
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) mutateUser(op string, id int64, fn func(*user.User)) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(op); err != nil {
		return user.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateRequest"); err != nil {
		return request.Request{}, err
	}
	table, ok := s.requests[req.Kind]
	if !ok {
		return request.Request{}, storage.ErrNotFound
	}
	if req.ID == 0 {
		req.ID = s.nextIDLocked(string(req.Kind))
	} else if req.ID > s.nextID[string(req.Kind)] {
		s.nextID[string(req.Kind)] = req.ID
	}
	if req.Status == "" {
		req.Status = request.StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	table[req.ID] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, kind request.Kind, id int64) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("GetRequest"); err != nil {
		return request.Request{}, err
	}
	req, ok := s.requests[kind][id]
	if !ok {
		return request.Request{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) UpdateRequestStatus(_ context.Context, kind request.Kind, id int64, status request.Status, requirePending bool) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("UpdateRequestStatus"); err != nil {
		return request.Request{}, err
	}
	req, ok := s.requests[kind][id]
	if !ok || (requirePending && req.Status != request.StatusPending) {
		return request.Request{}, storage.ErrNotFound
	}
	req.Status = status
	s.requests[kind][id] = req
	return req, nil
}

func (s *Store) ListRequests(_ context.Context, kind request.Kind, filter request.Filter) ([]request.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListRequests"); err != nil {
		return nil, err
	}
	out := make([]request.View, 0, len(s.requests[kind]))
	for _, req := range s.requests[kind] {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.UserID != 0 && req.UserID != filter.UserID {
			continue
		}
		view := request.View{Request: req, UserName: request.DeletedUserName, UserEmail: request.DeletedUserEmail}
		if owner, ok := s.users[req.UserID]; ok {
			view.UserName = owner.Name
			view.UserEmail = owner.Email
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SumRequests(_ context.Context, kind request.Kind, userID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("SumRequests"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, req := range s.requests[kind] {
		if req.UserID == userID {
			total = total.Add(req.Amount)
		}
	}
	return total, nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateNotification"); err != nil {
		return notification.Notification{}, err
	}
	n.ID = s.nextIDLocked("notifications")
	n.Read = false
	n.CreatedAt = s.now()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID int64) ([]notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListNotifications"); err != nil {
		return nil, err
	}
	var out []notification.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID int64) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("MarkNotificationRead"); err != nil {
		return notification.Notification{}, err
	}
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, storage.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return n, nil
}

// PlanStore implementation ----------------------------------------------------

func (s *Store) UpsertPlan(_ context.Context, p plan.Plan) (plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("UpsertPlan"); err != nil {
		return plan.Plan{}, err
	}
	for id, existing := range s.plans {
		if existing.Code == p.Code {
			existing.Name = p.Name
			s.plans[id] = existing
			return existing, nil
		}
	}
	p.ID = s.nextIDLocked("plans")
	s.plans[p.ID] = p
	return p, nil
}

func (s *Store) GetPlanByCode(_ context.Context, code string) (plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("GetPlanByCode"); err != nil {
		return plan.Plan{}, err
	}
	if p, ok := s.planByCodeLocked(code); ok {
		return p, nil
	}
	return plan.Plan{}, storage.ErrNotFound
}

func (s *Store) planByCodeLocked(code string) (plan.Plan, bool) {
	for _, p := range s.plans {
		if p.Code == code {
			return p, true
		}
	}
	return plan.Plan{}, false
}

func (s *Store) ListPlans(_ context.Context) ([]plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListPlans"); err != nil {
		return nil, err
	}
	out := make([]plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) LinkUserPlan(_ context.Context, userID, planID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("LinkUserPlan"); err != nil {
		return err
	}
	if _, ok := s.plans[planID]; !ok {
		return storage.ErrNotFound
	}
	if s.userPlans[userID] == nil {
		s.userPlans[userID] = make(map[int64]struct{})
	}
	s.userPlans[userID][planID] = struct{}{}
	return nil
}

func (s *Store) HasPlanMembership(_ context.Context, userID int64, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("HasPlanMembership"); err != nil {
		return false, err
	}
	p, ok := s.planByCodeLocked(code)
	if !ok {
		return false, nil
	}
	_, member := s.userPlans[userID][p.ID]
	return member, nil
}

func (s *Store) ListUserPlans(_ context.Context, userID int64) ([]plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListUserPlans"); err != nil {
		return nil, err
	}
	var out []plan.Plan
	for planID := range s.userPlans[userID] {
		out = append(out, s.plans[planID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CommunityStore implementation -----------------------------------------------

func (s *Store) CreateCommunityMessage(_ context.Context, msg plan.Message) (plan.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateCommunityMessage"); err != nil {
		return plan.Message{}, err
	}
	msg.ID = s.nextIDLocked("community_messages")
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	if owner, ok := s.users[msg.UserID]; ok {
		msg.UserName = owner.Name
	}
	return msg, nil
}

func (s *Store) ListCommunityMessages(_ context.Context, planID int64) ([]plan.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListCommunityMessages"); err != nil {
		return nil, err
	}
	var out []plan.Message
	for _, msg := range s.messages {
		if msg.PlanID != planID {
			continue
		}
		msg.UserName = request.DeletedUserName
		if owner, ok := s.users[msg.UserID]; ok {
			msg.UserName = owner.Name
		}
		out = append(out, msg)
	}
	return out, nil
}

// SupportStore implementation -------------------------------------------------

func (s *Store) CreateTicket(_ context.Context, t support.Ticket) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateTicket"); err != nil {
		return support.Ticket{}, err
	}
	t.ID = s.nextIDLocked("support_tickets")
	t.Status = support.StatusPending
	t.CreatedAt = s.now()
	s.tickets[t.ID] = t
	return t, nil
}

func (s *Store) ListTickets(_ context.Context) ([]support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListTickets"); err != nil {
		return nil, err
	}
	out := make([]support.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		t.UserName, t.UserEmail = s.ownerLocked(t.UserID)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ReplyTicket(_ context.Context, id int64, reply string) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ReplyTicket"); err != nil {
		return support.Ticket{}, err
	}
	t, ok := s.tickets[id]
	if !ok {
		return support.Ticket{}, storage.ErrNotFound
	}
	t.Reply = reply
	t.Status = support.StatusReplied
	s.tickets[id] = t
	return t, nil
}

// ReportStore implementation --------------------------------------------------

func (s *Store) CreateReport(_ context.Context, r support.Report) (support.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("CreateReport"); err != nil {
		return support.Report{}, err
	}
	r.ID = s.nextIDLocked("reports")
	r.Status = support.StatusPending
	r.CreatedAt = s.now()
	s.reports[r.ID] = r
	return r, nil
}

func (s *Store) ListReports(_ context.Context) ([]support.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ListReports"); err != nil {
		return nil, err
	}
	out := make([]support.Report, 0, len(s.reports))
	for _, r := range s.reports {
		r.UserName, r.UserEmail = s.ownerLocked(r.UserID)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ReplyReport(_ context.Context, id int64, reply string) (support.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("ReplyReport"); err != nil {
		return support.Report{}, err
	}
	r, ok := s.reports[id]
	if !ok {
		return support.Report{}, storage.ErrNotFound
	}
	r.Reply = reply
	r.Status = support.StatusReviewed
	s.reports[id] = r
	return r, nil
}

func (s *Store) ownerLocked(userID int64) (string, string) {
	if owner, ok := s.users[userID]; ok {
		return owner.Name, owner.Email
	}
	return request.DeletedUserName, request.DeletedUserEmail
}

// StatsStore implementation ---------------------------------------------------

func (s *Store) Stats(_ context.Context) (storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked("Stats"); err != nil {
		return storage.Stats{}, err
	}
	count := func(kind request.Kind) (total, pending int64) {
		for _, req := range s.requests[kind] {
			total++
			if req.Status == request.StatusPending {
				pending++
			}
		}
		return total, pending
	}
	st := storage.Stats{TotalUsers: int64(len(s.users))}
	st.TotalLoans, st.PendingLoans = count(request.KindLoan)
	st.TotalInvestments, st.PendingInvestments = count(request.KindInvestment)
	st.TotalContributions, st.PendingContributions = count(request.KindContribution)
	st.TotalWithdrawals, st.PendingWithdrawals = count(request.KindWithdrawal)
	return st, nil
}
