package reconstruct

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"pagerecon/internal/layout"
	"pagerecon/internal/ocr"
	"pagerecon/internal/pagemodel"
	"pagerecon/internal/preprocess"
	"pagerecon/internal/render"
)

func page(w, h int, boxes ...image.Rectangle) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(g, g.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	for _, b := range boxes {
		draw.Draw(g, b, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return g
}

type captureRenderer struct {
	mu      sync.Mutex
	calls   int
	entries []pagemodel.Entry
	path    string
	err     error
}

func (c *captureRenderer) Render(entries []pagemodel.Entry, outputPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.entries = entries
	c.path = outputPath
	return c.err
}

func constant(text string) ocr.Recognizer {
	return ocr.RecognizerFunc(func(ctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		return text, nil
	})
}

func newPipeline(t *testing.T, rec ocr.Recognizer, rend render.Renderer, opts Options) *Pipeline {
	t.Helper()
	ex, err := layout.NewExtractor(layout.DefaultOptions())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	p, err := New(ex, rec, rend, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func entryEqual(a, b pagemodel.Entry) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps &&
		a.Text == b.Text
}

func TestRunSingleBlock(t *testing.T) {
	p := newPipeline(t, constant("HELLO"), nil, DefaultOptions())

	res, err := p.Run(context.Background(), page(200, 100, image.Rect(20, 20, 120, 40)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := pagemodel.Entry{X: 4, Y: 4, Width: 20, Height: 4, Text: "HELLO"}
	if len(res.Entries) != 1 || !entryEqual(res.Entries[0], want) {
		t.Fatalf("entries = %+v, want [%+v]", res.Entries, want)
	}
	if len(res.Failed) != 0 {
		t.Errorf("failed = %v", res.Failed)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if res.Layout.Regions[0].Text != "HELLO" {
		t.Errorf("layout text = %q", res.Layout.Regions[0].Text)
	}
}

func TestRunBlankPage(t *testing.T) {
	var calls atomic.Int32
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		calls.Add(1)
		return "x", nil
	})
	p := newPipeline(t, rec, nil, DefaultOptions())

	res, err := p.Run(context.Background(), page(50, 50))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("entries = %v, want empty", res.Entries)
	}
	if calls.Load() != 0 {
		t.Errorf("recognizer called %d times", calls.Load())
	}
}

func TestRunPreservesOrderUnderConcurrency(t *testing.T) {
	var boxes []image.Rectangle
	for row := 0; row < 4; row++ {
		for col := 0; col < 3; col++ {
			x, y := 20+col*200, 20+row*80
			boxes = append(boxes, image.Rect(x, y, x+120, y+25))
		}
	}

	var inFlight, peak atomic.Int32
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(time.Duration(rand.Intn(15)) * time.Millisecond)
		return r.String(), nil
	})

	opts := DefaultOptions()
	opts.Workers = 3
	p := newPipeline(t, rec, nil, opts)

	res, err := p.Run(context.Background(), page(660, 360, boxes...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Layout.Regions) != len(boxes) {
		t.Fatalf("got %d regions, want %d", len(res.Layout.Regions), len(boxes))
	}
	for i, r := range res.Layout.Regions {
		if r.Text != r.Rect().String() {
			t.Errorf("region %d text = %q, want %q", i, r.Text, r.Rect().String())
		}
		if res.Entries[i].Text != r.Text {
			t.Errorf("entry %d text = %q, want %q", i, res.Entries[i].Text, r.Text)
		}
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", peak.Load())
	}
}

func TestRunRecognitionFailureLeavesEmptyText(t *testing.T) {
	boxes := []image.Rectangle{
		image.Rect(20, 20, 120, 40),
		image.Rect(20, 100, 120, 120),
		image.Rect(20, 180, 120, 200),
	}
	bad := image.Rect(20, 100, 120, 120)
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		if r == bad {
			return "", ocr.ErrOCRFailed
		}
		return "ok", nil
	})
	p := newPipeline(t, rec, nil, DefaultOptions())

	res, err := p.Run(context.Background(), page(200, 240, boxes...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("got %d entries", len(res.Entries))
	}
	for i, e := range res.Entries {
		want := "ok"
		if res.Layout.Regions[i].Rect() == bad {
			want = ""
		}
		if e.Text != want {
			t.Errorf("entry %d text = %q, want %q", i, e.Text, want)
		}
	}
	if len(res.Failed) != 1 || res.Layout.Regions[res.Failed[0]].Rect() != bad {
		t.Errorf("failed = %v", res.Failed)
	}
}

func TestRunRegionTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores its context; the pipeline must still move on.
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		<-release
		return "late", nil
	})
	opts := DefaultOptions()
	opts.RegionTimeout = 20 * time.Millisecond
	p := newPipeline(t, rec, nil, opts)

	start := time.Now()
	res, err := p.Run(context.Background(), page(200, 100, image.Rect(20, 20, 120, 40)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v", elapsed)
	}
	if len(res.Entries) != 1 || res.Entries[0].Text != "" {
		t.Errorf("entries = %+v", res.Entries)
	}
	if len(res.Failed) != 1 || res.Failed[0] != 0 {
		t.Errorf("failed = %v", res.Failed)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := ocr.RecognizerFunc(func(rctx context.Context, img image.Image, r image.Rectangle) (string, error) {
		cancel()
		<-rctx.Done()
		return "", rctx.Err()
	})
	p := newPipeline(t, rec, nil, DefaultOptions())

	_, err := p.Run(ctx, page(200, 100, image.Rect(20, 20, 120, 40)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Op != "recognize" {
		t.Errorf("err = %#v, want recognize PipelineError", err)
	}

	if _, err := p.Run(ctx, page(10, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("pre-canceled: err = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	extractor, _ := layout.NewExtractor(layout.DefaultOptions())
	tests := []struct {
		name string
		ex   LayoutExtractor
		rec  ocr.Recognizer
		opts Options
	}{
		{"no extractor", nil, constant(""), DefaultOptions()},
		{"no recognizer", extractor, nil, DefaultOptions()},
		{"bad scale", extractor, constant(""), Options{Page: pagemodel.Options{Scale: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.ex, tt.rec, nil, tt.opts); !errors.Is(err, ErrInvalidPipeline) {
				t.Errorf("err = %v, want ErrInvalidPipeline", err)
			}
		})
	}

	p, err := New(extractor, constant(""), nil, Options{Page: pagemodel.DefaultOptions()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.opts.Workers <= 0 || p.opts.RegionTimeout != DefaultRegionTimeout {
		t.Errorf("defaults not applied: %+v", p.opts)
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.png")
	if err := imaging.Save(page(200, 100, image.Rect(20, 20, 120, 40)), in); err != nil {
		t.Fatal(err)
	}

	rend := &captureRenderer{}
	p := newPipeline(t, constant("HELLO"), rend, DefaultOptions())

	job := Job{
		Input:   in,
		Output:  filepath.Join(dir, "out", "scan.pdf"),
		Overlay: filepath.Join(dir, "debug", "scan.png"),
	}
	res, err := p.RunFile(context.Background(), job)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if rend.calls != 1 || rend.path != job.Output {
		t.Fatalf("renderer calls = %d path = %q", rend.calls, rend.path)
	}
	want := pagemodel.Entry{X: 4, Y: 4, Width: 20, Height: 4, Text: "HELLO"}
	if len(res.Entries) != 1 || !entryEqual(rend.entries[0], want) {
		t.Errorf("entries = %+v, want [%+v]", rend.entries, want)
	}
	if _, err := os.Stat(job.Overlay); err != nil {
		t.Errorf("overlay not written: %v", err)
	}
}

func TestRunFileMissingInput(t *testing.T) {
	rend := &captureRenderer{}
	p := newPipeline(t, constant("x"), rend, DefaultOptions())

	_, err := p.RunFile(context.Background(), Job{
		Input:  filepath.Join(t.TempDir(), "nope.png"),
		Output: filepath.Join(t.TempDir(), "out.pdf"),
	})
	if !errors.Is(err, preprocess.ErrImageNotFound) {
		t.Fatalf("err = %v, want ErrImageNotFound", err)
	}
	if rend.calls != 0 {
		t.Error("renderer called for a missing input")
	}
}

func TestRunFileRenderError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.png")
	if err := imaging.Save(page(50, 50), in); err != nil {
		t.Fatal(err)
	}
	rend := &captureRenderer{err: render.ErrRenderFailed}
	p := newPipeline(t, constant("x"), rend, DefaultOptions())

	_, err := p.RunFile(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.pdf")})
	if !errors.Is(err, render.ErrRenderFailed) {
		t.Errorf("err = %v, want ErrRenderFailed", err)
	}
}

func TestRunFileBlankPageWritesPDF(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "white.png")
	if err := imaging.Save(page(50, 50), in); err != nil {
		t.Fatal(err)
	}
	pdf, err := render.NewPDFRenderer(render.DefaultPDFOptions())
	if err != nil {
		t.Fatalf("NewPDFRenderer: %v", err)
	}
	p := newPipeline(t, constant("never"), pdf, DefaultOptions())

	out := filepath.Join(dir, "white.pdf")
	res, err := p.RunFile(context.Background(), Job{Input: in, Output: out})
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("entries = %v", res.Entries)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		t.Error("output is not a PDF")
	}
}
