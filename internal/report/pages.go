package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/pkg/models"
)

const (
	firmName      = "STGM Architecture"
	headerCaption = "NOTE DE VISITE DE CHANTIER"

	headerTop    = 10.0
	headerRuleY  = 26.0
	contentTop   = 36.0
	lineHeight   = 5.0
	ruleWidth    = 0.75
	defaultWidth = 0.2
)

var logoNames = []string{"logo.png", "logo.jpg", "logo.jpeg"}

// findLogo returns the first logo file found in dirs.
func findLogo(dirs []string) string {
	for _, dir := range dirs {
		for _, name := range logoNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// FormatDate renders an ISO date as dd/mm/yyyy. Unparseable input is
// returned unchanged.
func FormatDate(s string) string {
	t, ok := models.ParseTimestamp(s)
	if !ok {
		return strings.TrimSpace(s)
	}
	return t.Format("02/01/2006")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (r *renderer) header() {
	d := r.doc
	left := pageMargin
	right := left + d.contentWidth()

	logoDrawn := false
	if r.logo != "" {
		if err := d.drawImage(r.ctx, r.images, r.logo, Box{X: left, Y: headerTop, W: 40, H: 14}); err != nil {
			logging.Debug("logo not embedded", "path", r.logo, "error", err)
			r.logo = ""
		} else {
			logoDrawn = true
		}
	}
	if !logoDrawn {
		d.font("B", 12)
		d.pdf.SetXY(left, headerTop+4)
		d.cell(60, 6, firmName, "", 0, "L", false, "")
	}

	infoW := 110.0
	d.font("B", 9)
	d.pdf.SetXY(right-infoW, headerTop+1)
	d.fitCell(infoW, lineHeight, r.meta.ProjectName, "", 0, "R", false, "")
	d.font("", 9)
	d.pdf.SetXY(right-infoW, headerTop+1+lineHeight)
	d.fitCell(infoW, lineHeight, FormatDate(r.meta.ReportDate), "", 0, "R", false, "")

	d.pdf.SetLineWidth(ruleWidth)
	d.pdf.Line(left, headerRuleY, right, headerRuleY)
	d.pdf.SetLineWidth(defaultWidth)

	d.font("B", 9)
	d.pdf.SetXY(left, headerRuleY+1.5)
	d.cell(d.contentWidth(), lineHeight, headerCaption, "", 0, "C", false, "")
	d.pdf.SetXY(left, contentTop)
}

func (r *renderer) footer() {
	d := r.doc
	w := d.contentWidth() / 2
	d.pdf.SetY(-12)
	d.font("I", 8)
	d.pdf.SetTextColor(90, 90, 90)
	d.cell(w, lineHeight, fmt.Sprintf("© %d %s - Tous droits réservés", r.year, firmName), "", 0, "L", false, "")
	d.cell(w, lineHeight, fmt.Sprintf("Page %d / {nb}", d.pdf.PageNo()), "", 0, "R", false, "")
	d.pdf.SetTextColor(0, 0, 0)
}

// paragraph writes wrapped text at the left margin, one line per row.
func (r *renderer) paragraph(text string, style string, size float64) {
	d := r.doc
	d.font(style, size)
	for _, line := range d.wrap(text, d.contentWidth()) {
		d.pdf.CellFormat(d.contentWidth(), lineHeight, line, "", 1, "L", false, 0, "")
	}
}

func (r *renderer) divider() {
	d := r.doc
	y := d.pdf.GetY() + 3
	d.pdf.SetDrawColor(150, 150, 150)
	d.pdf.Line(pageMargin, y, pageMargin+d.contentWidth(), y)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.SetY(y + 3)
}

func (r *renderer) heading(text string, size float64) {
	d := r.doc
	d.font("B", size)
	d.pdf.SetX(pageMargin)
	d.cell(d.contentWidth(), 7, text, "", 1, "L", false, "")
}

// coverPage draws the title page from the project metadata.
func (r *renderer) coverPage() {
	d := r.doc
	m := r.meta
	d.pdf.AddPage()

	d.font("B", 16)
	d.pdf.SetX(pageMargin)
	d.cell(d.contentWidth(), 10, "VISITE DE CHANTIER NO "+orDash(m.VisitNumber), "", 1, "C", false, "")
	top := d.pdf.GetY() + 4

	imageBox := Box{X: pageMargin + d.contentWidth() - 65, Y: top, W: 65, H: 65}
	if m.CoverImage != "" {
		if err := d.drawImage(r.ctx, r.images, m.CoverImage, imageBox); err != nil {
			logging.Warn("cover image not embedded", "error", err)
			d.placeholder(imageBox, "Image indisponible")
		}
	}

	fields := []struct{ label, value string }{
		{"Dossier architecte:", m.ArchitectFile},
		{"Projet:", m.ProjectName},
		{"Propriétaire:", m.Owner},
		{"Entrepreneur:", m.Contractor},
		{"Visite no:", m.VisitNumber},
		{"Date de visite:", FormatDate(m.VisitDate)},
		{"Date du rapport:", FormatDate(m.ReportDate)},
		{"Visité par:", m.VisitedBy},
		{"Présences:", strings.Join(m.Presence, ", ")},
	}
	labelW, valueW := 38.0, imageBox.X-pageMargin-38-5
	y := top
	for _, f := range fields {
		d.font("B", 9)
		d.pdf.SetXY(pageMargin, y)
		d.cell(labelW, lineHeight, f.label, "", 0, "L", false, "")
		d.font("", 9)
		lines := d.wrap(orDash(f.value), valueW)
		for _, line := range lines {
			d.pdf.SetXY(pageMargin+labelW, y)
			d.pdf.CellFormat(valueW, lineHeight, line, "", 0, "L", false, 0, "")
			y += lineHeight
		}
		y += 1.5
	}
	if bottom := imageBox.Y + imageBox.H; m.CoverImage != "" && bottom > y {
		y = bottom
	}
	d.pdf.SetXY(pageMargin, y)

	r.divider()
	r.heading("DESCRIPTION", 11)
	r.paragraph(orDash(m.Description), "", 9)

	r.divider()
	r.heading("DISTRIBUTION", 11)
	if len(m.Distribution) == 0 {
		r.paragraph("-", "", 9)
	}
	for _, name := range m.Distribution {
		r.paragraph("- "+name, "", 9)
	}
}

var generalNotes = []struct {
	title string
	body  string
	subs  []struct{ title, body string }
}{
	{
		title: "A. OBJET DE LA VISITE",
		body: "La présente note consigne les constats effectués lors de la visite de chantier. " +
			"Elle informe les intervenants de l'avancement des travaux et des éléments qui requièrent une action.",
	},
	{
		title: "B. PORTÉE DU RAPPORT",
		body: "Les constats sont visuels et partiels. L'absence de commentaire sur un élément ne constitue pas " +
			"une acceptation de celui-ci. Les items fermés ne sont pas reproduits dans ce rapport.",
	},
	{
		title: "C. RESPONSABILITÉS",
		body: "L'entrepreneur demeure seul responsable des moyens, des méthodes et de la sécurité du chantier. " +
			"Les items sont classés comme suit :",
		subs: []struct{ title, body string }{
			{"C.1 Observations", "Constats portés à l'attention des intervenants, sans correctif exigé."},
			{"C.2 Instructions", "Directives de l'architecte que l'entrepreneur doit exécuter."},
			{"C.3 Déficiences", "Travaux non conformes aux documents contractuels, à corriger par l'entrepreneur."},
			{"C.4 Suivi", "Chaque item est suivi jusqu'à sa fermeture. L'entrepreneur avise l'architecte des correctifs apportés."},
		},
	},
}

// notesPage draws the general-notes page.
func (r *renderer) notesPage() {
	d := r.doc
	d.pdf.AddPage()
	r.heading("NOTES GÉNÉRALES", 14)
	d.pdf.Ln(2)
	for _, section := range generalNotes {
		r.heading(section.title, 11)
		r.paragraph(section.body, "", 9)
		for _, sub := range section.subs {
			d.pdf.Ln(1)
			d.pdf.SetX(pageMargin)
			r.heading(sub.title, 9.5)
			r.paragraph(sub.body, "", 9)
		}
		d.pdf.Ln(4)
	}
}
