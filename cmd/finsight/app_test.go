package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/imunoz/finsight/internal/api"
	"github.com/imunoz/finsight/internal/apitest"
	"github.com/imunoz/finsight/internal/auth"
	"github.com/imunoz/finsight/internal/chat"
	"github.com/imunoz/finsight/internal/config"
	"github.com/imunoz/finsight/internal/history"
	"github.com/imunoz/finsight/internal/reports"
)

var testCtx = context.Background()

// newTestApp wires the full stack against a fake backend, with an in-memory
// token slot and archive.
func newTestApp(t *testing.T, backend *apitest.Server) *app {
	t.Helper()

	store := &auth.MemoryTokenStore{}
	var session *auth.Session
	client := api.New(backend.URL(),
		api.WithHTTPClient(backend.Client()),
		api.WithTokenSource(tokenSourceFunc(func() (string, bool) {
			if session == nil {
				return "", false
			}
			return session.Token()
		})),
		api.WithUnauthorizedHook(func() {
			if session != nil {
				session.Invalidate()
			}
		}),
	)
	session = auth.NewSession(client, store, nil)

	archive, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })

	return &app{
		cfg:     config.Config{},
		session: session,
		client:  client,
		chat:    chat.NewSynchronizer(client, archive, nil),
		reports: reports.New(client, t.TempDir(), nil),
		archive: archive,
	}
}

func TestApp_LoginAndChatFlow(t *testing.T) {
	backend := apitest.New(t)
	backend.AddAccount("ana@example.com", "s3cret", "Ana", api.RoleAnalyst)

	a := newTestApp(t, backend)

	if err := a.session.Login(testCtx, "ana@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !a.session.Authenticated() {
		t.Fatal("session not authenticated after login")
	}
	if user, ok := a.session.User(); !ok || user.FullName != "Ana" {
		t.Errorf("user = %+v (ok=%v), want Ana", user, ok)
	}

	if err := a.chat.SendMessage(testCtx, "how much did we spend on storage?"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	msgs := a.chat.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != api.RoleUser || msgs[1].Role != api.RoleAssistant {
		t.Errorf("roles = %q/%q, want user/assistant", msgs[0].Role, msgs[1].Role)
	}
	for _, m := range msgs {
		if m.Pending || m.ID <= 0 {
			t.Errorf("message %d still pending after confirmed send", m.ID)
		}
	}
	if a.chat.CurrentConversation() == 0 {
		t.Error("no conversation selected after first send")
	}
	if len(a.chat.Conversations()) != 1 {
		t.Errorf("conversation list has %d entries, want 1", len(a.chat.Conversations()))
	}

	// The confirmed pair lands in the local archive.
	archived, err := a.archive.Messages(a.chat.CurrentConversation())
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(archived) != 2 {
		t.Errorf("archive has %d messages, want 2", len(archived))
	}
}

func TestApp_WrongPasswordKeepsServerDetail(t *testing.T) {
	backend := apitest.New(t)
	backend.AddAccount("ana@example.com", "s3cret", "Ana", api.RoleAnalyst)

	a := newTestApp(t, backend)

	// The 401 from the login call itself must surface as a login failure,
	// not trip the session-expired reset.
	err := a.session.Login(testCtx, "ana@example.com", "wrong")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if got := a.session.Err(); got != "Invalid credentials" {
		t.Errorf("session.Err() = %q, want %q", got, "Invalid credentials")
	}
	if a.session.Status() != auth.SessionError {
		t.Errorf("status = %v, want error state", a.session.Status())
	}
	if a.session.Authenticated() {
		t.Error("session must not be authenticated after a rejected login")
	}
}

func TestApp_UnauthorizedResetsSession(t *testing.T) {
	backend := apitest.New(t)
	backend.AddAccount("ana@example.com", "s3cret", "Ana", api.RoleAnalyst)

	a := newTestApp(t, backend)
	if err := a.session.Login(testCtx, "ana@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	backend.FailNext(http.StatusUnauthorized, "Token expired")
	if err := a.chat.LoadConversations(testCtx); err == nil {
		t.Fatal("expected an error from the expired-token call")
	}

	if a.session.Status() != auth.Anonymous {
		t.Errorf("status = %v, want anonymous after 401", a.session.Status())
	}
	if tok, ok := a.session.Token(); ok {
		t.Errorf("token %q still present after 401", tok)
	}
}

func TestApp_SessionRestoredFromPersistedToken(t *testing.T) {
	backend := apitest.New(t)
	acct := backend.AddAccount("ana@example.com", "s3cret", "Ana", api.RoleAnalyst)

	store := &auth.MemoryTokenStore{}
	if err := store.Save(acct.Token); err != nil {
		t.Fatalf("seeding token: %v", err)
	}

	var session *auth.Session
	client := api.New(backend.URL(),
		api.WithHTTPClient(backend.Client()),
		api.WithTokenSource(tokenSourceFunc(func() (string, bool) {
			if session == nil {
				return "", false
			}
			return session.Token()
		})),
	)
	session = auth.NewSession(client, store, nil)

	if err := session.CheckAuth(testCtx); err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if !session.Authenticated() {
		t.Fatal("session not restored from persisted token")
	}
	if user, ok := session.User(); !ok || user.Email != "ana@example.com" {
		t.Errorf("user = %+v (ok=%v), want ana@example.com", user, ok)
	}
}

func TestApp_ReportLifecycle(t *testing.T) {
	backend := apitest.New(t)
	backend.AddAccount("ana@example.com", "s3cret", "Ana", api.RoleAnalyst)

	a := newTestApp(t, backend)
	if err := a.session.Login(testCtx, "ana@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	rep, err := a.reports.Generate(testCtx, "Q1 Report", api.ReportCostVsExpense)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.Status != api.StatusPending {
		t.Errorf("status = %q, want pending", rep.Status)
	}

	// Download before completion is rejected server-side.
	if _, err := a.reports.Download(testCtx, rep.ID, rep.Title); err == nil {
		t.Fatal("expected download of a pending report to fail")
	}

	backend.CompleteReport(rep.ID, []byte("%PDF-1.4 fake report"))

	listed, err := a.reports.List(testCtx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != api.StatusCompleted {
		t.Fatalf("listed = %+v, want one completed report", listed)
	}

	path, err := a.reports.Download(testCtx, rep.ID, rep.Title)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if filepath.Base(path) != "Q1 Report.pdf" {
		t.Errorf("file name = %q, want %q", filepath.Base(path), "Q1 Report.pdf")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != "%PDF-1.4 fake report" {
		t.Errorf("file content = %q", data)
	}
}

func TestApp_RequireAuthWithoutToken(t *testing.T) {
	backend := apitest.New(t)
	a := newTestApp(t, backend)

	if err := a.requireAuth(testCtx); err == nil {
		t.Fatal("expected requireAuth to fail when nobody is signed in")
	}
}
