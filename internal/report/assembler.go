// Package report composes the site-visit PDF: cover page, general notes and
// one chapter of issue cards per issue kind.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/stgm/visitreport/internal/comments"
	"github.com/stgm/visitreport/internal/imagefetch"
	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/status"
	"github.com/stgm/visitreport/pkg/models"
)

var chapterTitles = map[models.IssueKind]string{
	models.KindObservation: "1 - OBSERVATIONS",
	models.KindInstruction: "2 - INSTRUCTIONS",
	models.KindDeficiency:  "3 - DÉFICIENCES",
}

var emptyChapterText = map[models.IssueKind]string{
	models.KindObservation: "Aucune observation trouvée",
	models.KindInstruction: "Aucune instruction trouvée",
	models.KindDeficiency:  "Aucune déficience trouvée",
}

// Options configures report rendering.
type Options struct {
	// FontDir holds DejaVuSansCondensed TTF files replacing the bundled
	// ones; empty uses the bundled faces
	FontDir string

	// AssetDirs are searched in order for the header logo
	AssetDirs []string

	// GalleryLimit caps gallery images per card; zero means the default.
	// Rows that do not fit on the card's page are dropped.
	GalleryLimit int

	// RedirectBase prefixes application links, see DesktopLink
	RedirectBase string

	// CreationDate is written to the document info. Zero means now; a
	// fixed value makes the output reproducible.
	CreationDate time.Time

	// Images resolves image references; nil uses an imagefetch.Fetcher
	// with the default HTTP client
	Images ImageSource

	// Uncompressed disables stream compression
	Uncompressed bool
}

// Result is the outcome of a report run.
type Result struct {
	PDF   []byte
	Pages int
	Cards []CardResult

	// Err is the failure that turned the run into an error document.
	Err error
}

// Failed reports whether the document is the error fallback.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Assembler renders report contexts to PDF.
type Assembler struct {
	opts Options
}

// NewAssembler creates an assembler, filling unset options with defaults.
func NewAssembler(opts Options) *Assembler {
	if opts.GalleryLimit <= 0 {
		opts.GalleryLimit = comments.DefaultGalleryLimit
	}
	if opts.Images == nil {
		opts.Images = imagefetch.New(nil, "")
	}
	return &Assembler{opts: opts}
}

// renderer holds the state of one report run.
type renderer struct {
	ctx    context.Context
	doc    *document
	opts   Options
	images ImageSource
	meta   models.ProjectMetadata
	logo   string
	year   int
}

// Generate renders rc. Any failure while composing the report produces a
// one-page error document instead, with the cause in Result.Err. The returned
// error is only set when even that document cannot be produced.
func (a *Assembler) Generate(ctx context.Context, rc models.ReportContext) (*Result, error) {
	created := a.opts.CreationDate
	if created.IsZero() {
		created = time.Now()
	}

	res, err := a.generate(ctx, rc, created)
	if err == nil {
		logging.Info("report generated",
			"project_id", rc.ProjectID,
			"pages", res.Pages,
			"cards", len(res.Cards),
			"bytes", len(res.PDF))
		return res, nil
	}

	logging.Error("report generation failed, writing error document", "project_id", rc.ProjectID, "error", err)
	data, fallbackErr := errorDocument(rc.Metadata.ProjectName, err, created, a.opts.Uncompressed)
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to write error document: %w", errors.Join(err, fallbackErr))
	}
	return &Result{PDF: data, Pages: 1, Err: err}, nil
}

func (a *Assembler) generate(ctx context.Context, rc models.ReportContext, created time.Time) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Debug("report panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("report rendering panicked: %v", p)
		}
	}()

	smap := status.BuildMap(rc.WorkflowSettings)
	logging.Debug("status map built", "statuses", smap.Len())

	d := newDocument(a.opts.FontDir)
	r := &renderer{
		ctx:    ctx,
		doc:    d,
		opts:   a.opts,
		images: a.opts.Images,
		meta:   rc.Metadata,
		logo:   findLogo(a.opts.AssetDirs),
		year:   created.Year(),
	}
	r.setup(created)

	r.coverPage()
	r.notesPage()

	res = &Result{}
	for _, kind := range models.IssueKinds {
		res.Cards = append(res.Cards, r.chapter(kind, rc, smap)...)
	}

	if d.pdf.Err() {
		return nil, fmt.Errorf("failed to compose report: %w", d.pdf.Error())
	}
	res.Pages = d.pdf.PageNo()

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	res.PDF = buf.Bytes()
	return res, nil
}

func (r *renderer) setup(created time.Time) {
	pdf := r.doc.pdf
	pdf.SetTitle("Rapport de visite - "+r.meta.ProjectName, true)
	author := r.meta.Author
	if author == "" {
		author = firmName
	}
	pdf.SetAuthor(author, true)
	pdf.SetCreator("visitreport", true)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetCompression(!r.opts.Uncompressed)
	pdf.AliasNbPages("{nb}")
	pdf.SetHeaderFunc(r.header)
	pdf.SetFooterFunc(r.footer)
}

// chapter draws one issue kind. Closed issues and issues without an id are
// left out.
func (r *renderer) chapter(kind models.IssueKind, rc models.ReportContext, smap *status.Map) []CardResult {
	d := r.doc
	d.pdf.AddPage()
	d.font("B", 14)
	d.pdf.SetX(pageMargin)
	d.cell(d.contentWidth(), 10, chapterTitles[kind], "B", 1, "L", false, "")
	d.pdf.Ln(4)

	var issues []models.Issue
	for _, issue := range rc.IssuesOf(kind) {
		switch {
		case issue.ID == nil:
			logging.Debug("issue without id skipped", "kind", kind.String(), "uuid", issue.UUID)
		case status.IsClosed(issue):
		default:
			issues = append(issues, issue)
		}
	}

	if len(issues) == 0 {
		d.font("I", 10)
		d.pdf.SetX(pageMargin)
		d.cell(d.contentWidth(), 8, emptyChapterText[kind], "", 1, "L", false, "")
		return nil
	}

	cards := make([]CardResult, 0, len(issues))
	for i, issue := range issues {
		cls := comments.Classify(issue, rc.Comments[*issue.ID], r.opts.GalleryLimit)
		cards = append(cards, r.renderCard(issue, cls, smap, i == 0))
	}
	logging.Debug("chapter rendered", "kind", kind.String(), "cards", len(cards))
	return cards
}

// errorDocument renders a single page naming the project and the failure.
// It only uses the built-in Helvetica font.
func errorDocument(projectName string, cause error, created time.Time, uncompressed bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetCompression(!uncompressed)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	enc := func(s string) string { return tr(SanitizeLatin1(s)) }

	pdf.SetTitle("Rapport de visite - "+projectName, true)
	pdf.AddPage()
	pdf.SetFont(fallbackFamily, "B", 16)
	pdf.CellFormat(0, 10, enc("Erreur lors de la génération du rapport"), "", 1, "L", false, 0, "")
	pdf.SetFont(fallbackFamily, "", 11)
	pdf.CellFormat(0, 8, enc("Projet : "+orDash(projectName)), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont(fallbackFamily, "", 10)
	pdf.MultiCell(0, 5, enc(cause.Error()), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
