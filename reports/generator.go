package reports

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"reel-scout/models"
	"reel-scout/services"
)

// Evidence is the exported form of one flagged link or ad.
type Evidence struct {
	Kind         string               `json:"kind"`
	ID           string               `json:"id"`
	SessionID    string               `json:"session_id"`
	URL          string               `json:"url"`
	ResolvedURL  string               `json:"resolved_url,omitempty"`
	Profiles     []string             `json:"profiles,omitempty"`
	Caption      string               `json:"caption,omitempty"`
	Signal       models.Suspicion     `json:"signal"`
	Verdict      models.Suspicion     `json:"verdict"`
	ManualStatus string               `json:"manual_status,omitempty"`
	ReviewNotes  string               `json:"review_notes,omitempty"`
	Screenshot   string               `json:"screenshot,omitempty"`
	// Domain is the registration record of the target's domain, when looked up.
	Domain       *services.DomainInfo `json:"domain,omitempty"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// Target is the URL the evidence points at: where the link resolved, or the
// link itself.
func (e Evidence) Target() string {
	if e.ResolvedURL != "" {
		return e.ResolvedURL
	}
	return e.URL
}

func LinkEvidence(l *models.LinkRecord, now time.Time) Evidence {
	return Evidence{
		Kind:         "link",
		ID:           l.ID,
		SessionID:    l.SessionID,
		URL:          l.URL,
		ResolvedURL:  l.ResolvedURL,
		Profiles:     l.Profiles,
		Signal:       l.Signal,
		Verdict:      l.Suspicious(),
		ManualStatus: l.ManualStatus,
		ReviewNotes:  l.ReviewNotes,
		Screenshot:   l.Screenshot,
		GeneratedAt:  now,
	}
}

// AdEvidence mirrors LinkEvidence; a manual review overrides the scan verdict.
func AdEvidence(a *models.AdRecord, now time.Time) Evidence {
	verdict := a.Suspicious
	switch a.ManualStatus {
	case models.ReviewConfirmed:
		verdict = models.SuspicionTrue
	case models.ReviewCleared:
		verdict = models.SuspicionFalse
	}
	var profiles []string
	if a.Profile != "" {
		profiles = []string{a.Profile}
	}
	return Evidence{
		Kind:         "ad",
		ID:           a.ID,
		SessionID:    a.SessionID,
		URL:          a.Link,
		ResolvedURL:  a.FilteredLink,
		Profiles:     profiles,
		Caption:      a.Caption,
		Signal:       a.Suspicious,
		Verdict:      verdict,
		ManualStatus: a.ManualStatus,
		ReviewNotes:  a.ReviewNotes,
		Screenshot:   a.Screenshot,
		GeneratedAt:  now,
	}
}

func GenerateJSON(e Evidence) ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

func GeneratePDF(e Evidence) (*bytes.Buffer, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(15, 98, 254)
	pdf.Cell(0, 10, fmt.Sprintf("Suspicious %s evidence", e.Kind))
	pdf.Ln(12)

	pdf.SetFillColor(240, 240, 240)
	pdf.Rect(10, 22, 190, 40, "F")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(12, 25)
	pdf.Cell(0, 10, "ID: "+e.ID)
	pdf.SetXY(120, 25)
	pdf.Cell(0, 10, "Generated: "+e.GeneratedAt.Format("2006-01-02 15:04"))

	pdf.SetXY(12, 32)
	pdf.SetFont("Courier", "", 9)
	pdf.Cell(0, 10, "URL: "+e.URL)
	if e.ResolvedURL != "" && e.ResolvedURL != e.URL {
		pdf.SetXY(12, 37)
		pdf.Cell(0, 10, "Resolved: "+e.ResolvedURL)
	}

	pdf.SetXY(12, 45)
	pdf.SetFont("Arial", "B", 12)
	r, g, b := verdictColor(e.Verdict)
	pdf.SetTextColor(r, g, b)
	verdict := fmt.Sprintf("Verdict: %s", verdictLabel(e.Verdict))
	if e.ManualStatus != "" {
		verdict += fmt.Sprintf(" (manual: %s)", e.ManualStatus)
	}
	pdf.Cell(0, 10, verdict)

	pdf.Ln(25)
	pdf.SetTextColor(0, 0, 0)
	if len(e.Profiles) > 0 {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, "Referring profiles:")
		pdf.Ln(8)
		pdf.SetFont("Courier", "", 10)
		pdf.SetFillColor(30, 30, 30)
		pdf.SetTextColor(255, 255, 255)
		for _, p := range e.Profiles {
			pdf.CellFormat(0, 8, " > @"+p, "0", 1, "", true, 0, "")
		}
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(5)
	}

	if text := strings.TrimSpace(e.Caption); text != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, "Caption:")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, text, "", "", false)
		pdf.Ln(5)
	}
	if notes := strings.TrimSpace(e.ReviewNotes); notes != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, "Review notes:")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, notes, "", "", false)
		pdf.Ln(5)
	}

	if d := e.Domain; d != nil {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, "Domain registration:")
		pdf.Ln(8)
		pdf.SetFont("Courier", "", 9)
		for _, row := range domainRows(d) {
			pdf.CellFormat(0, 6, row, "", 1, "", false, 0, "")
		}
		pdf.Ln(5)
	}

	if e.Screenshot != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, "Evidence (Screenshot):")
		pdf.Ln(10)

		imgData, err := base64.StdEncoding.DecodeString(e.Screenshot)
		if err == nil {
			pdf.RegisterImageOptionsReader("screenshot", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(imgData))
			pdf.Image("screenshot", 10, pdf.GetY(), 190, 0, false, "", 0, "")
		}
		if err != nil || pdf.Err() {
			// unreadable image: note it and keep the rest
			pdf.ClearError()
			pdf.SetFont("Arial", "I", 10)
			pdf.Cell(0, 10, "Error loading screenshot.")
		}
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	return &buf, err
}

// domainRows lists the known fields of d, one "label: value" line each.
func domainRows(d *services.DomainInfo) []string {
	registered := "unknown"
	if d.Registered != nil {
		registered = "no"
		if *d.Registered {
			registered = "yes"
		}
	}
	rows := []string{"Domain: " + d.Domain, "Registered: " + registered}
	for _, f := range []struct{ label, value string }{
		{"Created", d.CreateDate},
		{"Updated", d.UpdateDate},
		{"Expires", d.ExpiryDate},
		{"Registrar", d.Registrar},
		{"Registrant", d.Registrant.Name},
		{"Company", d.Registrant.Company},
		{"Address", d.Registrant.Address},
		{"Email", d.Registrant.Email},
		{"Status", strings.Join(d.Status, ", ")},
	} {
		if f.value != "" {
			rows = append(rows, f.label+": "+f.value)
		}
	}
	return rows
}

func verdictLabel(s models.Suspicion) string {
	switch s {
	case models.SuspicionTrue:
		return "suspicious"
	case models.SuspicionFalse:
		return "not suspicious"
	}
	return "not scanned"
}

func verdictColor(s models.Suspicion) (int, int, int) {
	switch s {
	case models.SuspicionTrue:
		return 250, 77, 86
	case models.SuspicionFalse:
		return 66, 190, 101
	}
	return 241, 194, 27
}
