// Package reconstruct runs the page pipeline: detect text regions, recognize
// each one, map them to page coordinates and render the result.
//
// Regions of a page are recognized concurrently. Each goroutine writes only
// the text of its own region, so the detection order survives. A region whose
// recognition fails or times out keeps empty text and is listed in
// Result.Failed; it never aborts the page. Cancelling the context does.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
	"pagerecon/internal/ocr"
	"pagerecon/internal/pagemodel"
	"pagerecon/internal/preprocess"
	"pagerecon/internal/render"
)

// DefaultRegionTimeout bounds the recognition of a single region.
const DefaultRegionTimeout = 30 * time.Second

// LayoutExtractor detects text regions. Both layout.Extractor and the
// OpenCV-backed layout.CVExtractor satisfy it.
type LayoutExtractor interface {
	Extract(img image.Image) *layout.Layout
}

// Options configures a Pipeline.
type Options struct {
	// Workers caps concurrent recognitions per page. Zero means runtime.NumCPU().
	Workers int

	// RegionTimeout bounds each recognition. Zero means DefaultRegionTimeout.
	RegionTimeout time.Duration

	// Page maps pixels to document units.
	Page pagemodel.Options

	// Preprocess selects the optional cleanup steps used by RunFile.
	Preprocess preprocess.Options
}

// DefaultOptions returns the stock pipeline settings.
func DefaultOptions() Options {
	return Options{
		Workers:       runtime.NumCPU(),
		RegionTimeout: DefaultRegionTimeout,
		Page:          pagemodel.DefaultOptions(),
		Preprocess:    preprocess.DefaultOptions(),
	}
}

// Result is the outcome of one page.
type Result struct {
	RunID string

	// Layout holds the detected regions with their recognized text.
	Layout *layout.Layout

	// Entries are the regions in document units, in Layout order.
	Entries []pagemodel.Entry

	// Failed lists, in ascending order, the indices of regions whose
	// recognition failed or timed out.
	Failed []int

	Duration time.Duration
}

// Job names the files for RunFile.
type Job struct {
	Input  string
	Output string

	// Overlay, when set, receives a PNG of the working image with every
	// detected region outlined.
	Overlay string
}

// Pipeline ties the stages together. It is safe for concurrent use as long
// as its stages are; the recognizer is shared and not closed by the pipeline.
type Pipeline struct {
	extractor  LayoutExtractor
	recognizer ocr.Recognizer
	renderer   render.Renderer
	opts       Options
	log        zerolog.Logger
}

// New validates the stages and options. renderer may be nil when only Run is used.
func New(extractor LayoutExtractor, recognizer ocr.Recognizer, renderer render.Renderer, opts Options) (*Pipeline, error) {
	if extractor == nil {
		return nil, WrapPipelineError("new", "", fmt.Errorf("%w: no layout extractor", ErrInvalidPipeline))
	}
	if recognizer == nil {
		return nil, WrapPipelineError("new", "", fmt.Errorf("%w: no recognizer", ErrInvalidPipeline))
	}
	if opts.Page.Scale <= 0 {
		return nil, WrapPipelineError("new", "", fmt.Errorf("%w: %w", ErrInvalidPipeline, pagemodel.ErrInvalidScale))
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.RegionTimeout <= 0 {
		opts.RegionTimeout = DefaultRegionTimeout
	}

	return &Pipeline{
		extractor:  extractor,
		recognizer: recognizer,
		renderer:   renderer,
		opts:       opts,
		log:        logger.WithComponent("reconstruct"),
	}, nil
}

// Run detects and recognizes the regions of img and maps them to entries.
// img is not modified.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := logger.WithRunID(p.log, res.RunID)

	if err := ctx.Err(); err != nil {
		return nil, WrapPipelineError("extract", "", err)
	}

	res.Layout = p.extractor.Extract(img)
	log.Debug().Int("regions", res.Layout.Len()).Msg("Layout detected")

	failed, err := p.recognize(ctx, log, img, res.Layout.Regions)
	if err != nil {
		return nil, WrapPipelineError("recognize", "", err)
	}
	res.Failed = failed

	entries, err := pagemodel.Build(res.Layout, p.opts.Page)
	if err != nil {
		return nil, WrapPipelineError("build", "", err)
	}
	res.Entries = entries
	res.Duration = time.Since(start)

	log.Info().
		Int("regions", len(entries)).
		Int("failed", len(failed)).
		Dur("duration", res.Duration).
		Msg("Page reconstructed")
	return res, nil
}

type recognition struct {
	text string
	err  error
}

// recognize fills regions[i].Text for every region, Workers at a time.
func (p *Pipeline) recognize(ctx context.Context, log zerolog.Logger, img image.Image, regions []layout.Region) ([]int, error) {
	var (
		mu     sync.Mutex
		failed []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i := range regions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rctx, cancel := context.WithTimeout(gctx, p.opts.RegionTimeout)
			defer cancel()

			rect := regions[i].Rect()
			done := make(chan recognition, 1)
			go func() {
				text, err := p.recognizer.Recognize(rctx, img, rect)
				done <- recognition{text: text, err: err}
			}()

			var r recognition
			select {
			case r = <-done:
			case <-rctx.Done():
				r.err = rctx.Err()
			}

			if r.err != nil {
				if err := ctx.Err(); err != nil {
					return err
				}
				log.Warn().
					Err(r.err).
					Int("region", i).
					Stringer("bounds", rect).
					Msg("Recognition failed, leaving region empty")
				mu.Lock()
				failed = append(failed, i)
				mu.Unlock()
				r.text = ""
			}
			regions[i].Text = r.text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Ints(failed)
	return failed, nil
}

// RunFile loads and cleans job.Input, runs the page and renders the entries
// to job.Output. Loading errors are returned before any detection runs.
func (p *Pipeline) RunFile(ctx context.Context, job Job) (*Result, error) {
	if p.renderer == nil {
		return nil, WrapPipelineError("render", job.Input, fmt.Errorf("%w: no renderer", ErrInvalidPipeline))
	}

	img, err := preprocess.Load(job.Input)
	if err != nil {
		return nil, WrapPipelineError("load", job.Input, err)
	}
	work := preprocess.Apply(img, p.opts.Preprocess)

	res, err := p.Run(ctx, work)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			pe.Input = job.Input
		}
		return nil, err
	}

	if err := p.renderer.Render(res.Entries, job.Output); err != nil {
		return nil, WrapPipelineError("render", job.Input, err)
	}

	if job.Overlay != "" {
		overlay := res.Layout.Overlay
		if overlay == nil {
			overlay = layout.DrawOverlay(work, res.Layout.Regions, work.Rect.Min)
		}
		if err := render.WriteOverlay(overlay, job.Overlay); err != nil {
			return nil, WrapPipelineError("overlay", job.Input, err)
		}
	}

	log := logger.WithRunID(p.log, res.RunID)
	log.Info().
		Str("input", job.Input).
		Str("output", job.Output).
		Msg("File reconstructed")
	return res, nil
}
