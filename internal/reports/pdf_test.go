package reports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewPDF_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>Internal Server Error</html>"), 0o644))

	_, err := PreviewPDF(path)
	assert.Error(t, err, "an HTML error page must not pass the validity check")
}

func TestPreviewPDF_MissingFile(t *testing.T) {
	_, err := PreviewPDF(filepath.Join(t.TempDir(), "absent.pdf"))
	assert.Error(t, err)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("  short  ", 100))
	long := make([]byte, 0, 2000)
	for n := 0; n < 2000; n++ {
		long = append(long, 'a')
	}
	got := truncateText(string(long), previewChars)
	assert.Len(t, got, previewChars+3)
	assert.Equal(t, "...", got[previewChars:])
}
