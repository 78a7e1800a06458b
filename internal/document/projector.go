package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/models"
)

// Renderer turns a laid-out document into bytes and reports the page count.
type Renderer interface {
	Render(doc Document) ([]byte, int, error)
}

// Artifact is a rendered document. It is a projection of a persisted record
// and can be regenerated at any time.
type Artifact struct {
	Name  string
	Kind  Kind
	Data  []byte
	Pages int
}

// Save writes the artifact into dir and returns its path.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, a.Name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// FileName is <Kind>_<reference>_<yyyy-mm-dd>.pdf.
func FileName(kind Kind, reference string, date time.Time) string {
	ref := unsafeName.ReplaceAllString(reference, "-")
	if ref == "" || ref == "-" {
		ref = "unnumbered"
	}
	if date.IsZero() {
		date = epoch
	}
	return fmt.Sprintf("%s_%s_%s.pdf", kind, ref, date.Format("2006-01-02"))
}

type Projector struct {
	renderer Renderer
	format   Formatter
	log      zerolog.Logger
}

func NewProjector(renderer Renderer, format Formatter, log zerolog.Logger) *Projector {
	return &Projector{
		renderer: renderer,
		format:   format,
		log:      log.With().Str("component", "document").Logger(),
	}
}

func (p *Projector) Formatter() Formatter { return p.format }

func (p *Projector) RenderContract(ctx context.Context, c models.Contract) (*Artifact, error) {
	return p.Render(ctx, ContractLayout(c, p.format))
}

func (p *Projector) RenderInvoice(ctx context.Context, inv models.Invoice) (*Artifact, error) {
	return p.Render(ctx, InvoiceLayout(inv, p.format))
}

func (p *Projector) RenderSale(ctx context.Context, sheet SaleSheet) (*Artifact, error) {
	return p.Render(ctx, SaleLayout(sheet, p.format))
}

type renderResult struct {
	data  []byte
	pages int
	err   error
}

// Render runs the renderer on its own goroutine so a caller can stop
// waiting when ctx ends. The render itself is not interrupted.
func (p *Projector) Render(ctx context.Context, doc Document) (*Artifact, error) {
	start := time.Now()
	done := make(chan renderResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- renderResult{err: fmt.Errorf("render %s %s: panic: %v", doc.Kind, doc.Reference, r)}
			}
		}()
		data, pages, err := p.renderer.Render(doc)
		done <- renderResult{data: data, pages: pages, err: err}
	}()

	select {
	case <-ctx.Done():
		p.log.Warn().Str("kind", string(doc.Kind)).Str("reference", doc.Reference).Msg("render abandoned")
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			p.log.Error().Err(res.err).Str("kind", string(doc.Kind)).Str("reference", doc.Reference).Msg("render failed")
			return nil, res.err
		}
		a := &Artifact{
			Name:  FileName(doc.Kind, doc.Reference, doc.Date),
			Kind:  doc.Kind,
			Data:  res.data,
			Pages: res.pages,
		}
		p.log.Debug().
			Str("file", a.Name).
			Int("pages", a.Pages).
			Int("bytes", len(a.Data)).
			Dur("took", time.Since(start)).
			Msg("document rendered")
		return a, nil
	}
}
