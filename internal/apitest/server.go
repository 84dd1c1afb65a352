// Package apitest is an in-process fake of the FinSight backend, used by the
// test suites. It implements the REST surface with in-memory state: accounts,
// bearer tokens, conversations with canned assistant replies, and reports.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/imunoz/finsight/internal/api"
)

// Account seeds a known user for the fake backend.
type Account struct {
	Email    string
	Password string
	User     api.User
	Token    string
}

// Server is the fake backend. All fields guarded by mu; handlers record every
// request for assertions.
type Server struct {
	mu sync.Mutex

	accounts      []Account
	nextUserID    int
	conversations map[int]*api.ConversationDetail
	nextConvID    int
	nextMsgID     int
	reports       map[int]api.Report
	nextReportID  int
	reportFiles   map[int][]byte

	// Reply produces the assistant's answer for a user message. Defaults to
	// an echo.
	Reply func(userMessage string) string

	// FailWith, when non-zero, makes every subsequent request fail with this
	// status and detail. Used to exercise error paths.
	FailStatus int
	FailDetail string

	Requests []RecordedRequest

	httpServer *httptest.Server
}

// RecordedRequest is one request the fake backend served.
type RecordedRequest struct {
	Method string
	Path   string
	Auth   string
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		nextUserID:    1,
		conversations: make(map[int]*api.ConversationDetail),
		nextConvID:    1,
		nextMsgID:     1,
		reports:       make(map[int]api.Report),
		nextReportID:  1,
		reportFiles:   make(map[int][]byte),
		Reply:         func(m string) string { return "echo: " + m },
	}
	s.httpServer = httptest.NewServer(s.router())
	t.Cleanup(s.httpServer.Close)
	return s
}

// URL returns the fake backend's base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Client returns the httptest client for the fake backend.
func (s *Server) Client() *http.Client { return s.httpServer.Client() }

// AddAccount seeds an account whose token is "tok-<id>".
func (s *Server) AddAccount(email, password, fullName, role string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextUserID
	s.nextUserID++
	acct := Account{
		Email:    email,
		Password: password,
		User: api.User{
			ID:       id,
			Email:    email,
			FullName: fullName,
			Role:     role,
			IsActive: true,
		},
		Token: fmt.Sprintf("tok-%d", id),
	}
	s.accounts = append(s.accounts, acct)
	return acct
}

// AddReport seeds a report and, for completed ones, its file bytes.
func (s *Server) AddReport(title, reportType, status string, file []byte) api.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReportID
	s.nextReportID++
	rep := api.Report{
		ID:         id,
		Title:      title,
		ReportType: reportType,
		Status:     status,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	s.reports[id] = rep
	if file != nil {
		s.reportFiles[id] = file
	}
	return rep
}

// CompleteReport flips a pending report to completed with the given file.
func (s *Server) CompleteReport(id int, file []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := s.reports[id]
	rep.Status = api.StatusCompleted
	s.reports[id] = rep
	s.reportFiles[id] = file
}

// FailNext makes all subsequent requests fail with status/detail until
// cleared with FailNext(0, "").
func (s *Server) FailNext(status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailStatus = status
	s.FailDetail = detail
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Get("/auth/me", s.handleMe)

	r.Post("/chat/message", s.handleSendMessage)
	r.Get("/chat/conversations", s.handleListConversations)
	r.Get("/chat/conversations/{id}", s.handleGetConversation)
	r.Post("/chat/conversations", s.handleCreateConversation)

	r.Post("/reports/generate", s.handleGenerateReport)
	r.Get("/reports/list", s.handleListReports)
	r.Get("/reports/{id}", s.handleGetReport)
	r.Get("/reports/{id}/download", s.handleDownloadReport)

	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.Requests = append(s.Requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})
		failStatus, failDetail := s.FailStatus, s.FailDetail
		s.mu.Unlock()

		if failStatus != 0 {
			writeDetail(w, failStatus, failDetail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.Email == req.Email && acct.Password == req.Password {
			writeJSON(w, http.StatusOK, api.AuthResponse{
				AccessToken: acct.Token,
				TokenType:   "bearer",
				User:        acct.User,
			})
			return
		}
	}
	writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	for _, acct := range s.accounts {
		if acct.Email == req.Email {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
	}
	id := s.nextUserID
	s.nextUserID++
	acct := Account{
		Email:    req.Email,
		Password: req.Password,
		User: api.User{
			ID:       id,
			Email:    req.Email,
			FullName: req.FullName,
			Role:     api.RoleViewer,
			IsActive: true,
		},
		Token: fmt.Sprintf("tok-%d", id),
	}
	s.accounts = append(s.accounts, acct)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.AuthResponse{
		AccessToken: acct.Token,
		TokenType:   "bearer",
		User:        acct.User,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, acct.User)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	conv, ok := s.conversations[req.ConversationID]
	if !ok {
		id := s.nextConvID
		s.nextConvID++
		conv = &api.ConversationDetail{
			Conversation: api.Conversation{
				ID:        id,
				Title:     truncateTitle(req.Message),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			},
		}
		s.conversations[id] = conv
	}

	userMsg := s.newMessage(conv.ID, api.RoleUser, req.Message)
	assistantMsg := s.newMessage(conv.ID, api.RoleAssistant, s.Reply(req.Message))
	conv.Messages = append(conv.Messages, userMsg, assistantMsg)
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	resp := api.ChatResponse{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// newMessage must be called with mu held.
func (s *Server) newMessage(convID int, role, content string) api.Message {
	id := s.nextMsgID
	s.nextMsgID++
	return api.Message{
		ID:             id,
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.Lock()
	out := make([]api.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Conversation)
	}
	s.mu.Unlock()
	// Most recently updated first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt > out[i].UpdatedAt {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	detail := *conv
	detail.Messages = append([]api.Message(nil), conv.Messages...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	id := s.nextConvID
	s.nextConvID++
	conv := &api.ConversationDetail{
		Conversation: api.Conversation{
			ID:        id,
			Title:     req.Title,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	s.conversations[id] = conv
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conv.Conversation)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var req api.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReportType == "" {
		writeDetail(w, http.StatusBadRequest, "report_type is required")
		return
	}

	s.mu.Lock()
	id := s.nextReportID
	s.nextReportID++
	rep := api.Report{
		ID:         id,
		Title:      req.Title,
		ReportType: req.ReportType,
		Status:     api.StatusPending,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	s.reports[id] = rep
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	all := make([]api.Report, 0, len(s.reports))
	for id := 1; id < s.nextReportID; id++ {
		if rep, ok := s.reports[id]; ok {
			all = append(all, rep)
		}
	}
	s.mu.Unlock()

	if skip > len(all) {
		skip = len(all)
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, api.ReportList{Reports: all[skip:end], Total: len(all)})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid report id")
		return
	}
	s.mu.Lock()
	rep, ok := s.reports[id]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Report not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid report id")
		return
	}
	s.mu.Lock()
	rep, ok := s.reports[id]
	file := s.reportFiles[id]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Report not found")
		return
	}
	if rep.Status != api.StatusCompleted || file == nil {
		writeDetail(w, http.StatusBadRequest, "Report is not completed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(file)
}

func (s *Server) authenticate(r *http.Request) (Account, bool) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tok == "" || tok == r.Header.Get("Authorization") {
		return Account{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.Token == tok {
			return acct, true
		}
	}
	return Account{}, false
}

func truncateTitle(message string) string {
	if len(message) > 40 {
		return message[:40]
	}
	return message
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
