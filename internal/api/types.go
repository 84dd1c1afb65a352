package api

// User is the authenticated user's profile as returned by /auth/me
// and inside auth responses.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// User roles.
const (
	RoleViewer  = "viewer"
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// AuthResponse is returned by POST /auth/login and POST /auth/register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Conversation is a chat thread summary. The server keeps the list ordered
// most-recently-updated first.
type Conversation struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

// ConversationDetail is a conversation plus its full message history.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Message is a single chat message. Role is one of user, assistant or system.
type Message struct {
	ID             int    `json:"id"`
	ConversationID int    `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatRequest is the body of POST /chat/message. ConversationID of zero is
// omitted and tells the server to create a new conversation.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID int    `json:"conversation_id,omitempty"`
}

// ChatResponse is returned by POST /chat/message: the conversation the
// exchange landed in plus both persisted messages.
type ChatResponse struct {
	ConversationID   int     `json:"conversation_id"`
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"assistant_message"`
}

type createConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// Report types accepted by POST /reports/generate.
const (
	ReportDataSummary     = "data_summary"
	ReportTrendAnalysis   = "trend_analysis"
	ReportCustom          = "custom"
	ReportCostVsExpense   = "cost_vs_expense"
	ReportMonthlySummary  = "monthly_summary"
	ReportServiceAnalysis = "service_analysis"
)

// ReportTypes lists every report type the backend accepts.
var ReportTypes = []string{
	ReportDataSummary,
	ReportTrendAnalysis,
	ReportCustom,
	ReportCostVsExpense,
	ReportMonthlySummary,
	ReportServiceAnalysis,
}

// Report statuses. Generation is asynchronous: a report starts out pending or
// processing and only a later re-list shows the terminal status.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Report describes a generated (or in-flight) analysis report.
type Report struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	ReportType      string `json:"report_type"`
	Status          string `json:"status"`
	FilePath        string `json:"file_path,omitempty"`
	AnalysisSummary string `json:"analysis_summary,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// ReportRequest is the body of POST /reports/generate.
type ReportRequest struct {
	Title      string `json:"title"`
	ReportType string `json:"report_type"`
}

// ReportList is returned by GET /reports/list. Total counts all reports,
// not just the returned page.
type ReportList struct {
	Reports []Report `json:"reports"`
	Total   int      `json:"total"`
}
