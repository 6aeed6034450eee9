package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/stgm/visitreport/internal/comments"
	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/status"
	"github.com/stgm/visitreport/pkg/models"
)

// Card geometry in millimetres.
const (
	cardHeaderH    = 10.0
	cardTopH       = 60.0
	thumbFraction  = 0.33
	thumbPad       = 2.0
	badgePad       = 3.0
	sectionGap     = 3.0
	historyPad     = 2.0
	historyTitleH  = 7.0
	commentHeadH   = 5.0
	commentLineH   = 4.5
	commentGap     = 3.0
	overflowH      = 5.0
	galleryCellH   = 35.0
	galleryColGap  = 5.0
	galleryRowGap  = 3.0
	galleryColumns = 3
	cardSpacing    = 6.0

	// MaxHistoryComments is the number of text comments printed per card.
	MaxHistoryComments = 5
)

var (
	headerStripColor = status.RGB{R: 236, G: 239, B: 241}
	labelColor       = status.RGB{R: 100, G: 100, B: 100}
	linkColor        = status.RGB{R: 21, G: 101, B: 192}
	black            = status.RGB{}
)

// CardResult describes where and how an issue card was drawn.
type CardResult struct {
	IssueID int
	// Page is the page the card starts on and EndPage the one it ends on.
	Page    int
	EndPage int
	Top     float64
	Bottom  float64
	Badge   string

	// Comments is the number of text comments printed.
	Comments int
	// Overflow is the number of text comments left out.
	Overflow int
	// Truncated is set when comment text was cut to keep the card on one page.
	Truncated bool

	// Gallery lists the thumbnails drawn. GalleryDropped counts the images
	// left out because they did not fit on the page.
	Gallery        []string
	GalleryDropped int
	Links          []string
}

type historyEntry struct {
	author string
	date   string
	lines  []string
}

type cardLayout struct {
	history   []historyEntry
	overflow  int
	truncated bool
	gallery   []string
}

// DesktopLink rewrites a custom-scheme application link to go through the
// HTTP redirector at base.
func DesktopLink(base, raw string) string {
	if raw == "" || base == "" {
		return raw
	}
	return strings.TrimRight(base, "/") + "/region/redirect?url=" + raw
}

func (l *cardLayout) galleryRows() int {
	return (len(l.gallery) + galleryColumns - 1) / galleryColumns
}

func (l *cardLayout) galleryHeight() float64 {
	rows := l.galleryRows()
	if rows == 0 {
		return 0
	}
	return sectionGap + float64(rows)*galleryCellH + float64(rows-1)*galleryRowGap
}

// historyFixedHeight is the history block height without comment text lines.
func (l *cardLayout) historyFixedHeight() float64 {
	n := len(l.history)
	if n == 0 {
		return 0
	}
	h := sectionGap + 2*historyPad + historyTitleH + float64(n)*commentHeadH + float64(n-1)*commentGap
	if l.overflow > 0 {
		h += overflowH
	}
	return h
}

func (l *cardLayout) lineCount() int {
	total := 0
	for _, e := range l.history {
		total += len(e.lines)
	}
	return total
}

func (l *cardLayout) height() float64 {
	h := cardHeaderH + cardTopH + l.galleryHeight() + l.historyFixedHeight()
	return h + float64(l.lineCount())*commentLineH
}

// minHeight is the card height with one text line per comment.
func (l *cardLayout) minHeight() float64 {
	return cardHeaderH + cardTopH + l.galleryHeight() + l.historyFixedHeight() +
		float64(len(l.history))*commentLineH
}

func (r *renderer) historyTextWidth() float64 {
	return r.doc.contentWidth() - 2*historyPad
}

// layoutCard wraps the comment history and picks the gallery.
func (r *renderer) layoutCard(cls comments.Classified) *cardLayout {
	d := r.doc
	l := &cardLayout{gallery: cls.Gallery}

	text := cls.Text
	if len(text) > MaxHistoryComments {
		l.overflow = len(text) - MaxHistoryComments
		text = text[:MaxHistoryComments]
	}
	d.font("", 8.5)
	for _, c := range text {
		entry := historyEntry{author: c.Author.DisplayName(), date: FormatDate(c.Created)}
		entry.lines = d.wrap(c.Text.String(), r.historyTextWidth())
		if len(entry.lines) == 0 {
			entry.lines = []string{d.enc("-")}
		}
		l.history = append(l.history, entry)
	}
	return l
}

// fitGallery drops trailing gallery rows until the card fits avail with one
// text line per comment, and returns the number of images dropped.
func (l *cardLayout) fitGallery(avail float64) int {
	dropped := 0
	for len(l.gallery) > 0 && l.minHeight() > avail {
		keep := (l.galleryRows() - 1) * galleryColumns
		dropped += len(l.gallery) - keep
		l.gallery = l.gallery[:keep]
	}
	return dropped
}

// fitHistory drops trailing text lines until the card fits avail. Every
// comment keeps at least one line.
func (r *renderer) fitHistory(l *cardLayout, avail float64) {
	if l.height() <= avail {
		return
	}
	budget := int(math.Floor((avail - l.minHeight()) / commentLineH))
	if budget < 0 {
		budget = 0
	}
	budget += len(l.history)

	d := r.doc
	d.font("", 8.5)
	for i := range l.history {
		e := &l.history[i]
		allowed := budget - (len(l.history) - i - 1)
		if allowed < 1 {
			allowed = 1
		}
		if len(e.lines) > allowed {
			e.lines = e.lines[:allowed]
			e.lines[allowed-1] = d.truncate(e.lines[allowed-1]+" ...", r.historyTextWidth()-2*cellMargin)
			l.truncated = true
		}
		budget -= len(e.lines)
	}
}

// renderCard draws one issue card. Unless it is the first card of its
// chapter it starts on a new page; the card never spans two pages.
func (r *renderer) renderCard(issue models.Issue, cls comments.Classified, smap *status.Map, first bool) CardResult {
	d := r.doc
	resolution := smap.Resolve(issue)
	l := r.layoutCard(cls)

	if !first {
		d.pdf.AddPage()
	}
	dropped := l.fitGallery(d.breakY() - contentTop)
	if dropped > 0 {
		logging.Warn("gallery images left out to keep the card on one page", "issue_id", *issue.ID, "dropped", dropped)
	}
	top := d.pdf.GetY()
	if first && l.minHeight() > d.breakY()-top {
		d.pdf.AddPage()
		top = d.pdf.GetY()
	}
	r.fitHistory(l, d.breakY()-top)

	auto, margin := d.pdf.GetAutoPageBreak()
	d.pdf.SetAutoPageBreak(false, margin)
	defer d.pdf.SetAutoPageBreak(auto, margin)

	res := CardResult{
		IssueID:        *issue.ID,
		Page:           d.pdf.PageNo(),
		Top:            top,
		Badge:          resolution.DisplayText,
		Comments:       len(l.history),
		Overflow:       l.overflow,
		Truncated:      l.truncated,
		Gallery:        l.gallery,
		GalleryDropped: dropped,
	}

	r.cardHeader(issue, resolution, top)
	res.Links = r.cardTop(issue, cls.Thumbnail, top+cardHeaderH)

	y := top + cardHeaderH + cardTopH
	if len(l.history) > 0 {
		y = r.cardHistory(l, y+sectionGap)
	}
	if len(l.gallery) > 0 {
		y = r.cardGallery(l.gallery, y+sectionGap)
	}

	res.Bottom = y
	res.EndPage = d.pdf.PageNo()
	d.pdf.SetXY(pageMargin, y+cardSpacing)
	return res
}

func (r *renderer) cardHeader(issue models.Issue, res status.Resolution, top float64) {
	d := r.doc
	x, w := pageMargin, d.contentWidth()

	d.fillColor(headerStripColor)
	d.pdf.Rect(x, top, w, cardHeaderH, "F")

	d.font("B", 8)
	badgeW := d.width(res.DisplayText) + 2*badgePad
	badgeX := x + w - badgeW - 2
	d.fillColor(res.Background)
	d.pdf.Rect(badgeX, top+2, badgeW, cardHeaderH-4, "F")
	d.textColor(res.Text)
	d.pdf.SetXY(badgeX, top+2)
	d.cell(badgeW, cardHeaderH-4, res.DisplayText, "", 0, "C", false, "")

	d.textColor(black)
	d.font("B", 10)
	id := fmt.Sprintf("#%d", *issue.ID)
	idW := d.width(id) + 2*cellMargin
	d.pdf.SetXY(x+1, top)
	d.cell(idW, cardHeaderH, id, "", 0, "L", false, "")

	if title := issue.Title.String(); title != "" {
		d.font("", 9)
		titleW := badgeX - (x + 1 + idW) - 3
		if titleW > 10 {
			d.fitCell(titleW, cardHeaderH, title, "", 0, "L", false, "")
		}
	}
}

// cardTop draws the thumbnail column and the metadata grid and returns the
// link targets it placed.
func (r *renderer) cardTop(issue models.Issue, thumbnail string, y float64) []string {
	d := r.doc
	x, w := pageMargin, d.contentWidth()
	thumbW := w * thumbFraction

	box := Box{X: x, Y: y, W: thumbW, H: cardTopH}.Inset(thumbPad)
	if thumbnail == "" {
		d.placeholder(box, "Pas d'image")
	} else if err := d.drawImage(r.ctx, r.images, thumbnail, box); err != nil {
		logging.Warn("thumbnail not embedded", "issue_id", *issue.ID, "error", err)
		d.placeholder(box, "Pas d'image")
	}

	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.Rect(x, y-cardHeaderH, w, cardHeaderH+cardTopH, "D")
	d.pdf.Line(x, y, x+w, y)
	d.pdf.Line(x+thumbW, y, x+thumbW, y+cardTopH)

	gx := x + thumbW + 3
	colW := (w - thumbW - 6) / 2
	sheetNumber := issue.Sheet.Number.String()
	rows := [][2]struct{ label, value string }{
		{{"Assignée à:", issue.Assignee.String()}, {"Posée le:", FormatDate(issue.Created.String())}},
		{{"Nom feuille:", issue.Sheet.Name.String()}, {"No feuille:", sheetNumber}},
	}
	rowY := y + 4
	for _, row := range rows {
		for col, field := range row {
			fx := gx + float64(col)*colW
			d.font("B", 8)
			d.textColor(labelColor)
			d.pdf.SetXY(fx, rowY)
			d.cell(colW, lineHeight, field.label, "", 0, "L", false, "")
			d.font("", 9)
			d.textColor(black)
			d.pdf.SetXY(fx, rowY+lineHeight)
			d.fitCell(colW, lineHeight+1, orDash(field.value), "", 0, "L", false, "")
		}
		rowY += 16
	}

	if issue.OpenLinks.IsZero() {
		return nil
	}
	d.font("B", 8)
	d.textColor(labelColor)
	d.pdf.SetXY(gx, rowY)
	d.cell(colW, lineHeight, "Ouvrir dans :", "", 0, "L", false, "")
	d.pdf.SetXY(gx, rowY+lineHeight)
	d.textColor(black)

	var links []string
	web := issue.OpenLinks.Web.String()
	desktop := DesktopLink(r.opts.RedirectBase, issue.OpenLinks.Desktop.String())
	for _, link := range []struct{ label, url string }{{"Web", web}, {"Application", desktop}} {
		if link.url == "" {
			continue
		}
		if len(links) > 0 {
			d.font("", 9)
			d.cell(d.width(", ")+2*cellMargin, lineHeight+1, ", ", "", 0, "L", false, "")
		}
		d.font("U", 9)
		d.textColor(linkColor)
		d.cell(d.width(link.label)+2*cellMargin, lineHeight+1, link.label, "", 0, "L", false, link.url)
		d.textColor(black)
		links = append(links, link.url)
	}
	return links
}

// cardHistory draws the comment block starting at y and returns its bottom.
func (r *renderer) cardHistory(l *cardLayout, y float64) float64 {
	d := r.doc
	x, w := pageMargin, d.contentWidth()
	innerX, innerW := x+historyPad, r.historyTextWidth()
	height := l.historyFixedHeight() - sectionGap + float64(l.lineCount())*commentLineH

	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.Rect(x, y, w, height, "D")

	cy := y + historyPad
	d.font("B", 9)
	d.pdf.SetXY(innerX, cy)
	d.cell(innerW, historyTitleH, "Commentaires", "", 0, "L", false, "")
	cy += historyTitleH

	for i, e := range l.history {
		d.pdf.SetXY(innerX, cy)
		d.font("B", 8.5)
		d.fitCell(innerW*0.6, commentHeadH, e.author, "", 0, "L", false, "")
		d.font("I", 8)
		d.pdf.SetXY(innerX+innerW*0.6, cy)
		d.cell(innerW*0.4, commentHeadH, e.date, "", 0, "R", false, "")
		cy += commentHeadH

		d.font("", 8.5)
		for _, line := range e.lines {
			d.pdf.SetXY(innerX, cy)
			d.pdf.CellFormat(innerW, commentLineH, line, "", 0, "L", false, 0, "")
			cy += commentLineH
		}
		if i < len(l.history)-1 {
			d.pdf.SetDrawColor(200, 200, 200)
			d.pdf.Line(innerX, cy+commentGap/2, innerX+innerW, cy+commentGap/2)
			d.pdf.SetDrawColor(0, 0, 0)
			cy += commentGap
		}
	}

	if l.overflow > 0 {
		d.font("I", 8)
		d.textColor(labelColor)
		d.pdf.SetXY(innerX, cy)
		d.cell(innerW, overflowH, fmt.Sprintf("+%d commentaires texte supplémentaires", l.overflow), "", 0, "L", false, "")
		d.textColor(black)
	}
	return y + height
}

// cardGallery draws the image grid starting at y and returns its bottom.
func (r *renderer) cardGallery(urls []string, y float64) float64 {
	d := r.doc
	x := pageMargin
	cellW := (d.contentWidth() - 2*galleryColGap) / galleryColumns

	bottom := y
	for i, u := range urls {
		row, col := i/galleryColumns, i%galleryColumns
		cell := Box{
			X: x + float64(col)*(cellW+galleryColGap),
			Y: y + float64(row)*(galleryCellH+galleryRowGap),
			W: cellW,
			H: galleryCellH,
		}
		if err := d.drawImage(r.ctx, r.images, u, cell.Inset(1.5)); err != nil {
			logging.Warn("gallery image not embedded", "url", u, "error", err)
			d.placeholder(cell.Inset(1.5), "Image indisponible")
		}
		d.pdf.SetDrawColor(190, 190, 190)
		d.pdf.Rect(cell.X, cell.Y, cell.W, cell.H, "D")
		d.pdf.SetDrawColor(0, 0, 0)
		d.pdf.LinkString(cell.X, cell.Y, cell.W, cell.H, u)
		bottom = cell.Y + cell.H
	}
	return bottom
}
