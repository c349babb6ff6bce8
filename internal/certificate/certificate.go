// Package certificate renders completion certificates as PDF artifacts.
package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

var ErrInvalidFacts = errors.New("certificate: invalid facts")

// Facts is everything the rendered certificate states. TenantName is the
// white-label brand the certificate is issued under.
type Facts struct {
	Number        string
	TenantID      string
	TenantName    string
	UserID        string
	UserFullName  string
	ChallengeName string
	AccountSize   decimal.Decimal
	CompletedAt   time.Time
}

// Certificate is the persisted artifact row.
type Certificate struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	OrderID     string    `json:"order_id"`
	Number      string    `json:"certificate_number"`
	URL         string    `json:"certificate_url"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewNumber generates the certificate number for a tenant/user pair.
func NewNumber(tenantID, userID string, now time.Time) string {
	return fmt.Sprintf("CERT-%s-%s-%d", tenantID, userID, now.UnixMilli())
}

func (f Facts) validate() error {
	if f.Number == "" || f.UserFullName == "" || f.ChallengeName == "" {
		return fmt.Errorf("%w: number, holder and challenge are required", ErrInvalidFacts)
	}
	return nil
}

// Render produces the certificate PDF. Layout is a single landscape A4 page.
func Render(f Facts) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(25, 25, 25)
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(20, 40, 90)
	pdf.Rect(10, 10, w-20, h-20, "D")

	pdf.SetFont("Helvetica", "B", 30)
	pdf.SetTextColor(20, 40, 90)
	pdf.SetY(40)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.Ln(8)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)
	pdf.CellFormat(0, 12, f.UserFullName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.Ln(4)
	pdf.CellFormat(0, 8, "has successfully completed the trading challenge", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)
	label := f.ChallengeName
	if !f.AccountSize.IsZero() {
		label = fmt.Sprintf("%s ($%s account)", f.ChallengeName, f.AccountSize.StringFixed(0))
	}
	pdf.CellFormat(0, 10, label, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(90, 90, 90)
	pdf.SetY(h - 50)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued by %s on %s", f.TenantName, f.CompletedAt.Format("January 2, 2006")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, f.Number, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the certificate and stores it under dir, returning the
// relative URL the API serves it from.
func Write(dir string, f Facts) (string, error) {
	data, err := Render(f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("certificate dir: %w", err)
	}
	name := f.Number + ".pdf"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write certificate: %w", err)
	}
	return "/certificates/" + name, nil
}
