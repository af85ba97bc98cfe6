// Package render writes reconstructed pages to output documents.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/goregular"

	"pagerecon/internal/logger"
	"pagerecon/internal/pagemodel"
)

// Renderer places entries on a page and writes the document to outputPath.
type Renderer interface {
	Render(entries []pagemodel.Entry, outputPath string) error
}

const fontFamily = "body"

// minCellWidth keeps very narrow regions from wrapping one glyph per line.
const minCellWidth = 5.0

// PDFOptions configures the PDF page and text style. Lengths are in Unit.
type PDFOptions struct {
	Orientation string
	Unit        string
	PageSize    string

	// FontPath names a TrueType font. Empty uses the embedded Go Regular font.
	FontPath   string
	FontSize   float64
	LineHeight float64

	// PageBreakMargin is the bottom margin that triggers a new page.
	PageBreakMargin float64
}

// DefaultPDFOptions returns A4 portrait in millimetres, 12pt text with a 10mm
// line height and a 15mm page break margin.
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		Orientation:     "P",
		Unit:            "mm",
		PageSize:        "A4",
		FontSize:        12,
		LineHeight:      10,
		PageBreakMargin: 15,
	}
}

// PDFRenderer renders entries as positioned, wrapped text blocks in a PDF.
type PDFRenderer struct {
	opts PDFOptions
	font []byte
	log  zerolog.Logger
}

// NewPDFRenderer loads the font once so every Render call can reuse it.
func NewPDFRenderer(opts PDFOptions) (*PDFRenderer, error) {
	def := DefaultPDFOptions()
	if opts.Orientation == "" {
		opts.Orientation = def.Orientation
	}
	if opts.Unit == "" {
		opts.Unit = def.Unit
	}
	if opts.PageSize == "" {
		opts.PageSize = def.PageSize
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = def.LineHeight
	}
	if opts.PageBreakMargin <= 0 {
		opts.PageBreakMargin = def.PageBreakMargin
	}

	font := goregular.TTF
	if opts.FontPath != "" {
		b, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, WrapRenderError("NewPDFRenderer", opts.FontPath, fmt.Errorf("%w: %v", ErrFontLoad, err))
		}
		font = b
	}

	return &PDFRenderer{
		opts: opts,
		font: font,
		log:  logger.WithComponent("render"),
	}, nil
}

// Render writes one page (more if auto page break triggers) with each entry
// placed at its top-left corner and wrapped to its width. The file appears
// at outputPath only once it is complete.
func (r *PDFRenderer) Render(entries []pagemodel.Entry, outputPath string) error {
	const op = "Render"

	pdf := fpdf.New(r.opts.Orientation, r.opts.Unit, r.opts.PageSize, "")
	pdf.SetAutoPageBreak(true, r.opts.PageBreakMargin)
	pdf.AddUTF8FontFromBytes(fontFamily, "", r.font)
	pdf.SetFont(fontFamily, "", r.opts.FontSize)
	pdf.AddPage()

	for _, e := range entries {
		w := e.Width
		if w < minCellWidth {
			w = minCellWidth
		}
		pdf.SetXY(e.X, e.Y)
		pdf.MultiCell(w, r.opts.LineHeight, e.Text, "", "L", false)
	}
	if err := pdf.Error(); err != nil {
		return WrapRenderError(op, outputPath, fmt.Errorf("%w: %v", ErrRenderFailed, err))
	}

	if err := writeAtomic(outputPath, pdf); err != nil {
		return WrapRenderError(op, outputPath, err)
	}

	r.log.Info().
		Str("output", outputPath).
		Int("entries", len(entries)).
		Int("pages", pdf.PageCount()).
		Msg("PDF written")
	return nil
}

// writeAtomic creates the parent directory, writes to a temporary file next
// to path and renames it into place.
func writeAtomic(path string, pdf *fpdf.Fpdf) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output directory: %v", ErrRenderFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrRenderFailed, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := pdf.Output(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write pdf: %v", ErrRenderFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ErrRenderFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return nil
}
