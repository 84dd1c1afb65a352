// Package reports drives report listing, generation requests and binary
// downloads. Generation is asynchronous server-side: the client only learns
// a report's new status by re-listing.
package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/imunoz/finsight/internal/api"
)

// Default page for List.
const (
	DefaultSkip  = 0
	DefaultLimit = 20
)

// Fallback messages when the server response carries no detail field.
const (
	fallbackList     = "could not load reports"
	fallbackGenerate = "could not generate report"
	fallbackDownload = "could not download report"
)

// Gateway is the slice of the API client the coordinator needs.
type Gateway interface {
	Reports(ctx context.Context, skip, limit int) (api.ReportList, error)
	Report(ctx context.Context, id int) (api.Report, error)
	GenerateReport(ctx context.Context, req api.ReportRequest) (api.Report, error)
	DownloadReport(ctx context.Context, id int) ([]byte, string, error)
}

// Coordinator owns the client-side report state. Construct with New; all
// methods are safe for concurrent use. Every failure is converted into a
// stored user-facing message plus a returned error — nothing escapes untyped.
type Coordinator struct {
	mu      sync.Mutex
	reports []api.Report
	errMsg  string

	gw          Gateway
	downloadDir string
	log         *zap.Logger
}

// New creates a Coordinator writing downloads into downloadDir.
func New(gw Gateway, downloadDir string, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{gw: gw, downloadDir: downloadDir, log: log}
}

// List fetches one page of reports and replaces the in-memory list.
// Non-positive limit falls back to the default page size.
func (c *Coordinator) List(ctx context.Context, skip, limit int) ([]api.Report, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if skip < 0 {
		skip = DefaultSkip
	}

	list, err := c.gw.Reports(ctx, skip, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = api.Detail(err, fallbackList)
		return nil, err
	}
	c.errMsg = ""
	c.reports = list.Reports
	out := make([]api.Report, len(list.Reports))
	copy(out, list.Reports)
	return out, nil
}

// Generate queues report generation. The returned report is still pending or
// processing; call List again to observe the status transition.
func (c *Coordinator) Generate(ctx context.Context, title, reportType string) (api.Report, error) {
	if !validType(reportType) {
		return api.Report{}, fmt.Errorf("unknown report type %q (valid: %s)", reportType, strings.Join(api.ReportTypes, ", "))
	}

	rep, err := c.gw.GenerateReport(ctx, api.ReportRequest{Title: title, ReportType: reportType})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = api.Detail(err, fallbackGenerate)
		return api.Report{}, err
	}
	c.errMsg = ""
	c.log.Info("report generation queued", zap.Int("id", rep.ID), zap.String("status", rep.Status))
	return rep, nil
}

// Get fetches a single report's detail.
func (c *Coordinator) Get(ctx context.Context, id int) (api.Report, error) {
	rep, err := c.gw.Report(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = api.Detail(err, fallbackList)
		return api.Report{}, err
	}
	c.errMsg = ""
	return rep, nil
}

// Download fetches the report content in binary mode and writes it into the
// download directory as "<title>.<ext>", with the extension derived from the
// response Content-Type (PDF when unknown). It returns the written path.
// Gating on status == completed is the caller's responsibility.
func (c *Coordinator) Download(ctx context.Context, id int, title string) (string, error) {
	data, contentType, err := c.gw.DownloadReport(ctx, id)
	if err != nil {
		c.mu.Lock()
		c.errMsg = api.Detail(err, fallbackDownload)
		c.mu.Unlock()
		return "", err
	}

	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	path := filepath.Join(c.downloadDir, sanitizeFilename(title)+extensionFor(contentType))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}

	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
	c.log.Info("report downloaded", zap.Int("id", id), zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// Reports returns a copy of the last listed page.
func (c *Coordinator) Reports() []api.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Report, len(c.reports))
	copy(out, c.reports)
	return out
}

// Err returns the current user-facing error message, empty when none.
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// ClearError drops the error message.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
}

func validType(t string) bool {
	for _, v := range api.ReportTypes {
		if v == t {
			return true
		}
	}
	return false
}

func extensionFor(contentType string) string {
	// Content-Type may carry parameters ("application/pdf; charset=binary").
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.TrimSpace(contentType) {
	case "text/csv":
		return ".csv"
	case "application/json":
		return ".json"
	default:
		return ".pdf"
	}
}

// sanitizeFilename strips path separators and control characters so a server
// supplied title cannot escape the download directory.
func sanitizeFilename(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "report"
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteByte('_')
		case r < 0x20:
			// drop control characters
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "report"
	}
	return out
}
