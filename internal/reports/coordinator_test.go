package reports

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imunoz/finsight/internal/api"
)

type fakeGateway struct {
	listResp api.ReportList
	listErr  error
	lastSkip int
	lastLim  int

	genResp api.Report
	genErr  error
	lastReq api.ReportRequest

	getResp api.Report
	getErr  error

	blob        []byte
	contentType string
	blobErr     error
}

func (g *fakeGateway) Reports(ctx context.Context, skip, limit int) (api.ReportList, error) {
	g.lastSkip, g.lastLim = skip, limit
	return g.listResp, g.listErr
}

func (g *fakeGateway) Report(ctx context.Context, id int) (api.Report, error) {
	return g.getResp, g.getErr
}

func (g *fakeGateway) GenerateReport(ctx context.Context, req api.ReportRequest) (api.Report, error) {
	g.lastReq = req
	return g.genResp, g.genErr
}

func (g *fakeGateway) DownloadReport(ctx context.Context, id int) ([]byte, string, error) {
	return g.blob, g.contentType, g.blobErr
}

var ctx = context.Background()

func TestList_ReplacesPage(t *testing.T) {
	gw := &fakeGateway{listResp: api.ReportList{
		Reports: []api.Report{{ID: 1, Status: api.StatusCompleted}},
		Total:   1,
	}}
	c := New(gw, t.TempDir(), nil)

	got, err := c.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, DefaultLimit, gw.lastLim, "non-positive limit falls back to the default page size")

	gw.listResp = api.ReportList{Reports: []api.Report{{ID: 2}, {ID: 3}}, Total: 2}
	got, err = c.List(ctx, 0, 50)
	require.NoError(t, err)
	assert.Len(t, got, 2, "a new page replaces the old one")
	assert.Len(t, c.Reports(), 2)
}

func TestList_FailureSetsMessage(t *testing.T) {
	gw := &fakeGateway{listErr: &api.Error{Status: http.StatusInternalServerError, Detail: "reports down"}}
	c := New(gw, t.TempDir(), nil)

	_, err := c.List(ctx, 0, 10)
	require.Error(t, err)
	assert.Equal(t, "reports down", c.Err())

	c.ClearError()
	assert.Empty(t, c.Err())
}

func TestGenerate_QueuesRequest(t *testing.T) {
	gw := &fakeGateway{genResp: api.Report{ID: 7, Title: "Q1 costs", Status: api.StatusPending}}
	c := New(gw, t.TempDir(), nil)

	rep, err := c.Generate(ctx, "Q1 costs", api.ReportCostVsExpense)
	require.NoError(t, err)
	assert.Equal(t, api.StatusPending, rep.Status)
	assert.Equal(t, api.ReportCostVsExpense, gw.lastReq.ReportType)
	assert.Equal(t, "Q1 costs", gw.lastReq.Title)
}

func TestGenerate_RejectsUnknownType(t *testing.T) {
	gw := &fakeGateway{}
	c := New(gw, t.TempDir(), nil)

	_, err := c.Generate(ctx, "x", "horoscope")
	require.Error(t, err)
	assert.Empty(t, gw.lastReq.Title, "invalid type must not reach the gateway")
}

func TestDownload_WritesTitledFile(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{blob: []byte("%PDF-1.4 fake"), contentType: "application/pdf"}
	c := New(gw, dir, nil)

	path, err := c.Download(ctx, 3, "Q1 Report")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Q1 Report.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestDownload_ExtensionFromContentType(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{blob: []byte("a,b\n1,2\n"), contentType: "text/csv; charset=utf-8"}
	c := New(gw, dir, nil)

	path, err := c.Download(ctx, 4, "usage")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "usage.csv"), path)
}

func TestDownload_FailureSetsMessage(t *testing.T) {
	gw := &fakeGateway{blobErr: &api.Error{Status: http.StatusNotFound, Detail: "Report not found"}}
	c := New(gw, t.TempDir(), nil)

	_, err := c.Download(ctx, 99, "missing")
	require.Error(t, err)
	assert.Equal(t, "Report not found", c.Err())
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Q1 Report", "Q1 Report"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  ", "report"},
		{"..", "report"},
		{"tab\there", "tabhere"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", extensionFor("application/pdf"))
	assert.Equal(t, ".pdf", extensionFor(""))
	assert.Equal(t, ".csv", extensionFor("text/csv"))
	assert.Equal(t, ".json", extensionFor("application/json; charset=utf-8"))
}
