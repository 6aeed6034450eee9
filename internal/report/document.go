package report

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/status"
)

const (
	pageMargin   = 15.0
	bottomMargin = 15.0

	// cellMargin is fpdf's default horizontal cell padding for A4 in mm.
	cellMargin = 1.0

	fallbackFamily = "Helvetica"
	unicodeFamily  = "DejaVu"
)

//go:embed fonts/*.ttf
var bundledFonts embed.FS

// fontFaces lists the TTF files per fpdf style.
var fontFaces = []struct {
	style string
	file  string
}{
	{"", "DejaVuSansCondensed.ttf"},
	{"B", "DejaVuSansCondensed-Bold.ttf"},
	{"I", "DejaVuSansCondensed-Oblique.ttf"},
	{"BI", "DejaVuSansCondensed-BoldOblique.ttf"},
}

// document wraps an fpdf document with the active font family and the text
// encoding that goes with it.
type document struct {
	pdf     *fpdf.Fpdf
	family  string
	unicode bool
	tr      func(string) string
}

// newDocument creates an A4 portrait document with the Unicode font family
// from fontDir, or the bundled one when fontDir is empty. It falls back to
// Helvetica when the faces cannot be loaded.
func newDocument(fontDir string) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.SetCatalogSort(true)

	d := &document{pdf: pdf}
	if err := loadUnicodeFonts(pdf, fontDir); err != nil {
		logging.Warn("unicode font unavailable, using helvetica", "font_dir", fontDir, "error", err)
		d.family = fallbackFamily
		d.tr = pdf.UnicodeTranslatorFromDescriptor("")
	} else {
		d.family = unicodeFamily
		d.unicode = true
	}
	return d
}

func fontSource(fontDir string) (fs.FS, error) {
	if fontDir != "" {
		return os.DirFS(fontDir), nil
	}
	return fs.Sub(bundledFonts, "fonts")
}

// loadUnicodeFonts registers the DejaVu family. Regular, bold and italic are
// required; bold-italic falls back to bold.
func loadUnicodeFonts(pdf *fpdf.Fpdf, fontDir string) (err error) {
	fsys, err := fontSource(fontDir)
	if err != nil {
		return err
	}
	faces := make(map[string][]byte, len(fontFaces))
	for _, face := range fontFaces {
		data, readErr := fs.ReadFile(fsys, face.file)
		if readErr != nil {
			if face.style == "BI" {
				continue
			}
			return fmt.Errorf("failed to read font %s: %w", face.file, readErr)
		}
		faces[face.style] = data
	}
	if _, ok := faces["BI"]; !ok {
		faces["BI"] = faces["B"]
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid font file: %v", r)
			pdf.ClearError()
		}
	}()
	for _, face := range fontFaces {
		if !isTrueType(faces[face.style]) {
			return fmt.Errorf("%s is not a TrueType font", face.file)
		}
		pdf.AddUTF8FontFromBytes(unicodeFamily, face.style, faces[face.style])
	}
	// fpdf may skip a face it cannot parse without recording an error.
	for _, face := range fontFaces {
		pdf.SetFont(unicodeFamily, face.style, 10)
	}
	if pdf.Err() {
		err = pdf.Error()
		pdf.ClearError()
		return err
	}
	return nil
}

func isTrueType(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	magic := string(data[:4])
	return magic == "\x00\x01\x00\x00" || magic == "true"
}

// enc converts a UTF-8 string to the encoding of the active font. Call it
// exactly once per source string, right before handing it to fpdf.
func (d *document) enc(s string) string {
	if d.unicode {
		return stripAstral(s)
	}
	return d.tr(SanitizeLatin1(s))
}

// SanitizeLatin1 replaces every code point at or above 256 with '?'.
func SanitizeLatin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 256 {
			return '?'
		}
		return r
	}, s)
}

// stripAstral replaces code points outside the Basic Multilingual Plane,
// which the embedded font tables do not cover.
func stripAstral(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return '?'
		}
		return r
	}, s)
}

// wrap splits s into encoded lines no wider than w.
func (d *document) wrap(s string, w float64) []string {
	var out []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		paragraph = strings.TrimRight(paragraph, " \t")
		if paragraph == "" {
			out = append(out, "")
			continue
		}
		encoded := d.enc(paragraph)
		if d.unicode {
			out = append(out, d.pdf.SplitText(encoded, w)...)
			continue
		}
		for _, line := range d.pdf.SplitLines([]byte(encoded), w) {
			out = append(out, string(line))
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// truncate shortens an encoded line so that it and a trailing ellipsis fit w.
func (d *document) truncate(line string, w float64) string {
	const ellipsis = "..."
	if d.pdf.GetStringWidth(line) <= w {
		return line
	}
	for line != "" && d.pdf.GetStringWidth(line+ellipsis) > w {
		if d.unicode {
			r := []rune(line)
			line = string(r[:len(r)-1])
		} else {
			line = line[:len(line)-1]
		}
	}
	return strings.TrimRight(line, " ") + ellipsis
}

func (d *document) font(style string, size float64) {
	d.pdf.SetFont(d.family, style, size)
}

// cell draws one line of raw text.
func (d *document) cell(w, h float64, txt, border string, ln int, align string, fill bool, link string) {
	d.pdf.CellFormat(w, h, d.enc(txt), border, ln, align, fill, 0, link)
}

// fitCell draws raw text truncated to w.
func (d *document) fitCell(w, h float64, txt, border string, ln int, align string, fill bool, link string) {
	d.pdf.CellFormat(w, h, d.truncate(d.enc(txt), w-2*cellMargin), border, ln, align, fill, 0, link)
}

// width measures raw text in the current font.
func (d *document) width(txt string) float64 {
	return d.pdf.GetStringWidth(d.enc(txt))
}

func (d *document) contentWidth() float64 {
	w, _ := d.pdf.GetPageSize()
	return w - 2*pageMargin
}

// breakY is the lowest Y a drawing may reach before the bottom margin.
func (d *document) breakY() float64 {
	_, h := d.pdf.GetPageSize()
	return h - bottomMargin
}

func (d *document) textColor(c status.RGB) {
	d.pdf.SetTextColor(c.R, c.G, c.B)
}

func (d *document) fillColor(c status.RGB) {
	d.pdf.SetFillColor(c.R, c.G, c.B)
}
