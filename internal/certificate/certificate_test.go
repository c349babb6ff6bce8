package certificate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testFacts() Facts {
	return Facts{
		Number:        "CERT-t1-u1-1750000000000",
		TenantID:      "t1",
		TenantName:    "Acme Funded",
		UserID:        "u1",
		UserFullName:  "Jane Doe",
		ChallengeName: "Phase One 100K",
		AccountSize:   decimal.NewFromInt(100000),
		CompletedAt:   time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewNumber(t *testing.T) {
	now := time.UnixMilli(1750000000000)
	require.Equal(t, "CERT-t1-u1-1750000000000", NewNumber("t1", "u1", now))
}

func TestRenderProducesPDF(t *testing.T) {
	data, err := Render(testFacts())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderValidation(t *testing.T) {
	f := testFacts()
	f.UserFullName = ""
	_, err := Render(f)
	require.ErrorIs(t, err, ErrInvalidFacts)
}

func TestWriteReturnsRelativeURL(t *testing.T) {
	dir := t.TempDir()
	f := testFacts()

	url, err := Write(dir, f)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/certificates/"))
	require.True(t, strings.HasSuffix(url, ".pdf"))

	data, err := os.ReadFile(filepath.Join(dir, f.Number+".pdf"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
