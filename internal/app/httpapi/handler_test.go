package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	app "github.com/conthop/backend/internal/app"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage/memory"
	"github.com/conthop/backend/internal/config"
	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/mail"
)

type stubTransport struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *stubTransport) Name() string { return "stub" }

func (s *stubTransport) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testServer struct {
	t         *testing.T
	app       *app.Application
	store     *memory.Store
	transport *stubTransport
	handler   http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "handler-test-secret-0123", TokenTTL: time.Hour, ResetURL: "http://localhost:3000/reset-password"},
		Mail:      config.MailConfig{Transport: "log"},
		Notify:    config.NotifyConfig{Mode: "inline"},
		Log:       config.LogConfig{Level: "error", Format: "json"},
		PlansFile: "testdata/does-not-exist.yaml",
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := memory.New()
	transport := &stubTransport{}
	log := logging.NewWithOutput("httpapi-test", "error", "json", io.Discard)

	application, err := app.New(cfg, store, transport, log)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	handler, err := NewHandler(application, log, Options{DisableRateLimit: true})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &testServer{t: t, app: application, store: store, transport: transport, handler: handler}
}

func (s *testServer) seedUser(name, email string, role user.Role, status user.Status) user.User {
	s.t.Helper()
	u, err := s.store.CreateUser(context.Background(), user.User{Name: name, Email: email, PasswordHash: "x", Role: role, Status: status})
	if err != nil {
		s.t.Fatalf("seed user: %v", err)
	}
	return u
}

func (s *testServer) token(u user.User) string {
	s.t.Helper()
	tok, _, err := s.app.Tokens.Issue(u)
	if err != nil {
		s.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) seedRequest(kind request.Kind, ownerID int64, amount int64) request.Request {
	s.t.Helper()
	req := request.Request{Kind: kind, UserID: ownerID, Amount: decimal.NewFromInt(amount), Status: request.StatusPending}
	switch kind {
	case request.KindLoan:
		req.Purpose = "School fees"
		req.DurationMonths = 6
	case request.KindInvestment:
		req.ProjectName = "Poultry"
		returns := decimal.NewFromInt(10)
		req.Returns = &returns
	case request.KindWithdrawal:
		req.BankName = "First Bank"
		req.AccountName = "Ada Obi"
		req.AccountNumber = "0123456789"
	}
	rec, err := s.store.CreateRequest(context.Background(), req)
	if err != nil {
		s.t.Fatalf("seed request: %v", err)
	}
	return rec
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	detail, _ := body["error"].(map[string]interface{})
	code, _ := detail["code"].(string)
	return code
}

func TestHealthAndPlans(t *testing.T) {
	srv := newTestServer(t, nil)

	if rec := srv.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	rec := srv.do(http.MethodGet, "/api/plans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("plans status %d: %s", rec.Code, rec.Body.String())
	}
	plans, _ := decode(t, rec)["plans"].([]interface{})
	if len(plans) != 3 {
		t.Fatalf("expected default catalog of 3 plans, got %d", len(plans))
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(http.MethodGet, "/api/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestRegisterLoginAndProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name":        "Ada Obi",
		"email":       "Ada@Example.com",
		"password":    "s3cretpass",
		"phone":       "08030000000",
		"dateOfBirth": "1990-04-12",
		"plans":       []string{"daily"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %s", rec.Code, rec.Body.String())
	}
	if tok, _ := decode(t, rec)["token"].(string); tok == "" {
		t.Fatalf("register returned no token")
	}

	rec = srv.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong-pass"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status %d", rec.Code)
	}

	rec = srv.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "s3cretpass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["token"].(string)

	rec = srv.do(http.MethodGet, "/api/user/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	profile, _ := body["user"].(map[string]interface{})
	if profile["email"] != "ada@example.com" {
		t.Fatalf("unexpected profile email %v", profile["email"])
	}
	if _, leaked := profile["passwordHash"]; leaked {
		t.Fatalf("password hash leaked in profile")
	}
	if plans, _ := body["plans"].([]interface{}); len(plans) != 1 {
		t.Fatalf("expected one linked plan, got %v", body["plans"])
	}

	rec = srv.do(http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name": "Ada Again", "email": "ada@example.com", "password": "s3cretpass",
		"dateOfBirth": "1990-04-12", "plans": []string{"daily"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status %d", rec.Code)
	}
}

func TestMemberRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(http.MethodGet, "/api/user/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = srv.do(http.MethodGet, "/api/user/profile", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestSubmitLoanThenAdminApproveNotifiesOwner(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada Obi", "ada@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)

	rec := srv.do(http.MethodPost, "/api/user/loans", srv.token(member), map[string]interface{}{
		"amount": "50000", "purpose": "School fees", "duration": 6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body.String())
	}
	loan, _ := decode(t, rec)["loan"].(map[string]interface{})
	if loan["status"] != "pending" {
		t.Fatalf("new loan should be pending, got %v", loan["status"])
	}
	if _, ok := loan["returns"]; ok {
		t.Fatalf("loan should not carry returns: %v", loan)
	}
	id := int64(loan["id"].(float64))

	rec = srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/approve/%d", id), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["notified"] != true {
		t.Fatalf("expected notified=true, got %v", body["notified"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "user notified") {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/users/%d/notifications", member.ID), srv.token(member), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("notifications status %d", rec.Code)
	}
	notes, _ := decode(t, rec)["notifications"].([]interface{})
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	note := notes[0].(map[string]interface{})
	if note["title"] != "Loan Approved!" {
		t.Fatalf("unexpected title %v", note["title"])
	}
	if msg, _ := note["message"].(string); !strings.Contains(msg, "50,000") {
		t.Fatalf("amount missing from message %q", msg)
	}

	noteID := int64(note["id"].(float64))
	rec = srv.do(http.MethodPatch, fmt.Sprintf("/api/notifications/read/%d", noteID), srv.token(member), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read status %d", rec.Code)
	}
}

func TestSubmitRejectsUnstorableAmount(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada Obi", "ada@example.com", user.RoleUser, user.StatusActive)

	for _, amount := range []string{"10000000000000000000", "50000.125"} {
		rec := srv.do(http.MethodPost, "/api/user/loans", srv.token(member), map[string]interface{}{
			"amount": amount, "purpose": "School fees", "duration": 6,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("amount %s: status %d: %s", amount, rec.Code, rec.Body.String())
		}
		if code := errorCode(t, rec); code != "INVALID_ARGUMENT" {
			t.Fatalf("amount %s: code %s", amount, code)
		}
	}
}

func TestApproveSeventhLoanUsesStatusTable(t *testing.T) {
	srv := newTestServer(t, nil)
	other := srv.seedUser("Bola", "bola@example.com", user.RoleUser, user.StatusActive)
	owner := srv.seedUser("Chidi", "chidi@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	for i := 0; i < 6; i++ {
		srv.seedRequest(request.KindLoan, other.ID, 1000)
	}
	seventh := srv.seedRequest(request.KindLoan, owner.ID, 50000)
	if seventh.ID != 7 {
		t.Fatalf("expected id 7, got %d", seventh.ID)
	}

	rec := srv.do(http.MethodPatch, "/api/requests/loan/approve/7", srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status %d: %s", rec.Code, rec.Body.String())
	}
	stored, _ := srv.store.GetRequest(context.Background(), request.KindLoan, 7)
	if stored.Status != request.StatusApproved {
		t.Fatalf("expected approved, got %s", stored.Status)
	}
	notes, _ := srv.store.ListNotifications(context.Background(), owner.ID)
	if len(notes) != 1 || notes[0].Title != "Loan Approved!" {
		t.Fatalf("owner notification missing: %+v", notes)
	}
	if rest, _ := srv.store.ListNotifications(context.Background(), other.ID); len(rest) != 0 {
		t.Fatalf("other member should not be notified")
	}

	inv := srv.seedRequest(request.KindInvestment, owner.ID, 2000)
	rec = srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/investment/approve/%d", inv.ID), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("investment approve status %d", rec.Code)
	}
	stored, _ = srv.store.GetRequest(context.Background(), request.KindInvestment, inv.ID)
	if stored.Status != request.StatusSuccessful {
		t.Fatalf("investment approval should be successful, got %s", stored.Status)
	}
}

func TestWithdrawalDecisionAlsoEmails(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	w := srv.seedRequest(request.KindWithdrawal, owner.ID, 20000)

	rec := srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/withdrawal/reject/%d", w.ID), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status %d: %s", rec.Code, rec.Body.String())
	}
	if srv.transport.count() != 1 {
		t.Fatalf("expected one email, got %d", srv.transport.count())
	}
}

func TestTransitionRejectsInvalidIDWithoutStoreAccess(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	token := srv.token(admin)

	for _, path := range []string{
		"/api/requests/loan/approve/abc",
		"/api/requests/loan/approve/0",
		"/api/requests/loan/approve/-4",
		"/api/requests/grants/approve/1",
	} {
		srv.store.ResetCalls()
		rec := srv.do(http.MethodPatch, path, token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
		if n := srv.store.Calls("UpdateRequestStatus") + srv.store.Calls("GetRequest"); n != 0 {
			t.Fatalf("%s: request store touched %d times", path, n)
		}
		if n := srv.store.Calls("CreateNotification"); n != 0 {
			t.Fatalf("%s: notification created", path)
		}
	}
}

func TestTransitionMissingRequestIs404(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)

	rec := srv.do(http.MethodPatch, "/api/requests/contribution/reject/99", srv.token(admin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if n := srv.store.Calls("CreateNotification"); n != 0 {
		t.Fatalf("no notification expected, got %d", n)
	}
}

func TestRepeatedDecisionDependsOnTransitionMode(t *testing.T) {
	t.Run("default reapplies", func(t *testing.T) {
		srv := newTestServer(t, nil)
		owner := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
		admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
		loan := srv.seedRequest(request.KindLoan, owner.ID, 1000)
		path := fmt.Sprintf("/api/requests/loan/approve/%d", loan.ID)

		for i := 0; i < 2; i++ {
			if rec := srv.do(http.MethodPatch, path, srv.token(admin), nil); rec.Code != http.StatusOK {
				t.Fatalf("attempt %d: status %d", i, rec.Code)
			}
		}
		rec := srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/reject/%d", loan.ID), srv.token(admin), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("reject after approve: status %d", rec.Code)
		}
		notes, _ := srv.store.ListNotifications(context.Background(), owner.ID)
		if len(notes) != 3 {
			t.Fatalf("expected 3 notifications, got %d", len(notes))
		}
	})

	t.Run("strict refuses", func(t *testing.T) {
		srv := newTestServer(t, func(cfg *config.Config) { cfg.Lifecycle.StrictTransitions = true })
		owner := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
		admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
		loan := srv.seedRequest(request.KindLoan, owner.ID, 1000)

		rec := srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/approve/%d", loan.ID), srv.token(admin), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("first approve status %d", rec.Code)
		}
		rec = srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/reject/%d", loan.ID), srv.token(admin), nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		detail, _ := decode(t, rec)["error"].(map[string]interface{})
		details, _ := detail["details"].(map[string]interface{})
		if details["current_status"] != "approved" {
			t.Fatalf("unexpected details %v", details)
		}
		notes, _ := srv.store.ListNotifications(context.Background(), owner.ID)
		if len(notes) != 1 {
			t.Fatalf("expected a single notification, got %d", len(notes))
		}
	})
}

func TestNotifyFailureAfterCommitStillSucceeds(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	loan := srv.seedRequest(request.KindLoan, owner.ID, 1000)

	srv.store.SetErr("CreateNotification", errors.New("notifications table locked"))
	rec := srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/reject/%d", loan.ID), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if notified := decode(t, rec)["notified"]; notified != false {
		t.Fatalf("expected notified=false, got %v", notified)
	}
	stored, _ := srv.store.GetRequest(context.Background(), request.KindLoan, loan.ID)
	if stored.Status != request.StatusRejected {
		t.Fatalf("status should be committed, got %s", stored.Status)
	}
}

func TestAdminRoutesUseStoredRole(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	loan := srv.seedRequest(request.KindLoan, member.ID, 1000)

	forged := member
	forged.Role = user.RoleAdmin
	srv.store.ResetCalls()
	rec := srv.do(http.MethodPatch, fmt.Sprintf("/api/requests/loan/approve/%d", loan.ID), srv.token(forged), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin claim on member row, got %d", rec.Code)
	}
	if srv.store.Calls("UpdateRequestStatus") != 0 {
		t.Fatalf("transition should not reach the store")
	}

	promoted := srv.seedUser("Promoted", "promoted@example.com", user.RoleUser, user.StatusActive)
	if _, err := srv.store.SetUserRole(context.Background(), promoted.ID, user.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	rec = srv.do(http.MethodGet, "/api/admin/stats", srv.token(promoted), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stored admin with stale user claim should pass, got %d", rec.Code)
	}
}

func TestSuspendedMemberIsRefused(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	token := srv.token(member)
	if _, err := srv.store.SetUserStatus(context.Background(), member.ID, user.StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	rec := srv.do(http.MethodGet, "/api/user/profile", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"].(map[string]interface{})["message"]; msg != "Your account is suspended" {
		t.Fatalf("unexpected message %v", msg)
	}
}

func TestRequestQueueShowsDeletedOwners(t *testing.T) {
	srv := newTestServer(t, nil)
	gone := srv.seedUser("Gone", "gone@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	srv.seedRequest(request.KindContribution, gone.ID, 500)

	rec := srv.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", gone.ID), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(http.MethodGet, "/api/requests/contribution?status=pending", srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", rec.Code, rec.Body.String())
	}
	rows, _ := decode(t, rec)["contributions"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0].(map[string]interface{})
	if row["userName"] != request.DeletedUserName || row["userEmail"] != request.DeletedUserEmail {
		t.Fatalf("unexpected owner placeholders %v / %v", row["userName"], row["userEmail"])
	}

	rec = srv.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", admin.ID), srv.token(admin), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self delete should be refused, got %d", rec.Code)
	}
}

func TestNotificationInboxScoping(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	bola := srv.seedUser("Bola", "bola@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)

	rec := srv.do(http.MethodGet, fmt.Sprintf("/api/users/%d/notifications", bola.ID), srv.token(ada), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/users/%d/notifications", bola.ID), srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin should read any inbox, got %d", rec.Code)
	}
	if notes, ok := decode(t, rec)["notifications"].([]interface{}); !ok || len(notes) != 0 {
		t.Fatalf("expected an empty list, got %v", notes)
	}
}

func TestCommunityRequiresPlanMembership(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	member := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	daily, err := srv.store.GetPlanByCode(ctx, "daily")
	if err != nil {
		t.Fatalf("plan lookup: %v", err)
	}
	if err := srv.store.LinkUserPlan(ctx, member.ID, daily.ID); err != nil {
		t.Fatalf("link plan: %v", err)
	}
	token := srv.token(member)

	rec := srv.do(http.MethodPost, "/api/community/daily", token, map[string]string{"message": "Meeting on Friday"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post status %d: %s", rec.Code, rec.Body.String())
	}
	rec = srv.do(http.MethodGet, "/api/community/daily", token, nil)
	if msgs, _ := decode(t, rec)["messages"].([]interface{}); len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", msgs)
	}
	rec = srv.do(http.MethodGet, "/api/community/weekly", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign plan, got %d", rec.Code)
	}
}

func TestAdminNotifyUserReportsEmailFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)
	body := map[string]string{"subject": "Dues", "message": "Please pay your dues"}

	rec := srv.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/notify", member.ID), srv.token(admin), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("notify status %d: %s", rec.Code, rec.Body.String())
	}

	srv.transport.err = errors.New("smtp: 421 service not available")
	rec = srv.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/notify", member.ID), srv.token(admin), body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"].(map[string]interface{})["message"]; msg != "Failed to send email" {
		t.Fatalf("unexpected message %v", msg)
	}
}

func TestSupportReplyNotifiesAndIsAudited(t *testing.T) {
	srv := newTestServer(t, nil)
	member := srv.seedUser("Ada", "ada@example.com", user.RoleUser, user.StatusActive)
	admin := srv.seedUser("Root", "root@example.com", user.RoleAdmin, user.StatusActive)

	rec := srv.do(http.MethodPost, "/api/support", srv.token(member), map[string]string{"message": "I cannot see my contribution"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open ticket status %d: %s", rec.Code, rec.Body.String())
	}
	ticket, _ := decode(t, rec)["ticket"].(map[string]interface{})
	id := int64(ticket["id"].(float64))

	rec = srv.do(http.MethodPost, fmt.Sprintf("/api/admin/support/%d/reply", id), srv.token(admin), map[string]string{"reply": "Fixed now"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reply status %d: %s", rec.Code, rec.Body.String())
	}
	notes, _ := srv.store.ListNotifications(context.Background(), member.ID)
	if len(notes) != 1 || notes[0].Title != "Support Reply from Admin" {
		t.Fatalf("unexpected notifications %+v", notes)
	}

	rec = srv.do(http.MethodGet, "/api/admin/audit?limit=10", srv.token(admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status %d", rec.Code)
	}
	entries, _ := decode(t, rec)["entries"].([]interface{})
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]interface{})
	if entry["method"] != http.MethodPost || int64(entry["userId"].(float64)) != admin.ID {
		t.Fatalf("unexpected audit entry %v", entry)
	}
}

func TestAuditLogKeepsNewestEntries(t *testing.T) {
	log := newAuditLog(2, nil)
	for i := 0; i < 3; i++ {
		_ = log.add(auditEntry{Path: fmt.Sprintf("/p/%d", i)})
	}
	got := log.listLimit(0)
	if len(got) != 2 || got[0].Path != "/p/1" || got[1].Path != "/p/2" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if one := log.listLimit(1); len(one) != 1 || one[0].Path != "/p/2" {
		t.Fatalf("unexpected limited entries %+v", one)
	}
}
