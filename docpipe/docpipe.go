// CLAUDE:SUMMARY Recognition pipeline: format sniffing, PDF text layer first, raster fallback with per-image preprocessing and OCR on an ants pool.
// CLAUDE:DEPENDS preprocess, pdfraster, recognize, confidence, observability
// Package docpipe turns uploaded documents (PDF or raster images) into text.
//
// Flow:
//   - raster input: decode, preprocess with the requested preset, recognize,
//     score when the engine has no native confidence
//   - PDF input: return the text layer when it carries more than a few
//     characters, otherwise extract the embedded images and recognize each
//     one on a bounded worker pool, then stitch the texts
//
// Usage:
//
//	reg := recognize.NewRegistry()
//	reg.Register(engine)
//	pipe, err := docpipe.New(docpipe.Config{}, reg)
//	defer pipe.Close()
//	res, err := pipe.Process(ctx, data, docpipe.Options{Preset: "aggressive"})
package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/docsight/confidence"
	"github.com/hazyhaar/docsight/idgen"
	"github.com/hazyhaar/docsight/observability"
	"github.com/hazyhaar/docsight/pdfraster"
	"github.com/hazyhaar/docsight/preprocess"
	"github.com/hazyhaar/docsight/raster"
	"github.com/hazyhaar/docsight/recognize"
)

// TextLayerConfidence is reported for text read directly from a PDF.
const TextLayerConfidence = 0.95

// Advisory strings returned in Result.Warnings.
const (
	WarnScannedPDF  = "PDF appears to be scanned/image-based, extracting images for OCR"
	WarnEmptyPDF    = "No text or images found in PDF"
	warnImageFailed = "Failed to OCR image %d: %v"
)

var pdfMagic = []byte("%PDF-")

// Pipeline is the recognition engine. Safe for concurrent use.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	engines   *recognize.Registry
	preset    preprocess.Preset
	extractor *pdfraster.Extractor
	pool      *ants.Pool
	newID     idgen.Generator
}

// New creates a Pipeline over the engines in reg.
func New(cfg Config, reg *recognize.Registry) (*Pipeline, error) {
	cfg.defaults()
	if reg == nil {
		return nil, fmt.Errorf("%w: nil engine registry", ErrInvalidOptions)
	}
	preset, err := preprocess.ParsePreset(cfg.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("docpipe: worker pool: %w", err)
	}
	newID := idgen.Default
	if cfg.Runs != nil {
		newID = cfg.Runs.NewID
	}
	return &Pipeline{
		cfg:       cfg,
		logger:    cfg.Logger,
		engines:   reg,
		preset:    preset,
		extractor: pdfraster.New(pdfraster.WithLogger(cfg.Logger), pdfraster.WithMaxPixels(cfg.MaxPixels)),
		pool:      pool,
		newID:     newID,
	}, nil
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Registry returns the engine registry.
func (p *Pipeline) Registry() *recognize.Registry { return p.engines }

// MaxFileSize returns the input size cap.
func (p *Pipeline) MaxFileSize() int64 { return p.cfg.MaxFileSize }

// DefaultLanguage returns the first configured language.
func (p *Pipeline) DefaultLanguage() string { return p.cfg.Languages[0] }

// DefaultPreset returns the configured preprocessing preset.
func (p *Pipeline) DefaultPreset() preprocess.Preset { return p.preset }

// Detect sniffs the document format from its leading bytes.
func Detect(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF, nil
	}
	name, _, _ := raster.Sniff(data)
	switch Format(name) {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF, FormatWEBP:
		return Format(name), nil
	}
	return "", ErrUnsupportedFormat
}

// ProcessFile reads path and processes its contents.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, &TooLargeError{Size: info.Size(), Max: p.cfg.MaxFileSize}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Process(ctx, data, opts)
}

// request carries the resolved options of one Process call.
type request struct {
	engine    recognize.Engine
	preset    preprocess.Preset
	languages []string
}

func (p *Pipeline) resolve(opts Options) (*request, error) {
	engine, err := p.engines.Resolve(opts.Engine)
	if err != nil {
		return nil, err
	}
	preset := p.preset
	if opts.Preset != "" {
		preset, err = preprocess.ParsePreset(opts.Preset)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	langs := opts.Languages
	if len(langs) == 0 {
		langs = p.cfg.Languages
	}
	return &request{engine: engine, preset: preset, languages: langs}, nil
}

// Process recognizes the text of one document held in memory.
func (p *Pipeline) Process(ctx context.Context, data []byte, opts Options) (*Result, error) {
	start := time.Now()
	if int64(len(data)) > p.cfg.MaxFileSize {
		return nil, &TooLargeError{Size: int64(len(data)), Max: p.cfg.MaxFileSize}
	}
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	req, err := p.resolve(opts)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    p.newID(),
		Engine:   req.engine.Name(),
		Format:   format,
		Warnings: []string{},
	}
	p.logger.Debug("docpipe: processing", "run_id", res.RunID, "format", format,
		"engine", res.Engine, "preset", req.preset.String(), "bytes", len(data))

	if format == FormatPDF {
		err = p.processPDF(ctx, data, req, res)
	} else {
		err = p.processRaster(ctx, data, req, res)
	}
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	p.record(res, req, len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	p.logger.Info("docpipe: done", "run_id", res.RunID, "source", res.Source,
		"confidence", res.Confidence, "ms", res.ProcessingTimeMs, "warnings", len(res.Warnings))
	return res, nil
}

func (p *Pipeline) processRaster(ctx context.Context, data []byte, req *request, res *Result) error {
	if _, w, h := raster.Sniff(data); w > 0 && h > 0 && w > p.cfg.MaxPixels/h {
		return &DimensionsError{Width: w, Height: h, Max: p.cfg.MaxPixels}
	}
	img, _, err := raster.Decode(data)
	if err != nil {
		return &preprocess.Error{Kind: preprocess.DecodeFailure, Err: err}
	}
	out := p.recognizeOne(ctx, img, req)
	if out.prep != nil {
		res.Preprocessing = []*preprocess.Result{out.prep}
	}
	if out.err != nil {
		return out.err
	}
	res.Source = SourceOCR
	res.Images = 1
	res.Text = out.text
	res.Confidence = out.confidence
	return nil
}

func (p *Pipeline) processPDF(ctx context.Context, data []byte, req *request, res *Result) error {
	doc, err := pdfraster.Parse(data)
	if err != nil {
		return err
	}
	tl, err := readTextLayer(doc)
	if err != nil {
		p.logger.Debug("docpipe: no readable text layer", "run_id", res.RunID, "error", err)
	} else {
		res.Quality = tl.Quality
		if text := strings.TrimSpace(tl.Text); len(text) > p.cfg.TextLayerMinChars {
			if tl.Quality.Garbled() {
				p.logger.Warn("docpipe: text layer looks garbled", "run_id", res.RunID,
					"printable_ratio", tl.Quality.PrintableRatio, "wordlike_ratio", tl.Quality.WordlikeRatio)
			}
			res.Source = SourceTextLayer
			res.Text = norm.NFC.String(text)
			res.Confidence = TextLayerConfidence
			return nil
		}
	}

	if res.Quality != nil {
		p.logger.Debug("docpipe: falling back to raster OCR", "run_id", res.RunID, "image_only", res.Quality.ImageOnly())
	}
	res.Warnings = append(res.Warnings, WarnScannedPDF)
	ext := p.extractor.ExtractContext(doc)
	res.Source = SourceOCR
	res.Warnings = append(res.Warnings, ext.Warnings...)
	if len(ext.Images) == 0 {
		res.Warnings = []string{WarnEmptyPDF}
		return nil
	}

	outcomes := p.recognizeAll(ctx, ext.Buffers(), req)
	if err := ctx.Err(); err != nil {
		return err
	}
	res.Images = len(outcomes)

	var texts []string
	var scores []float64
	for i, out := range outcomes {
		if out.prep != nil {
			res.Preprocessing = append(res.Preprocessing, out.prep)
		}
		if out.err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf(warnImageFailed, i+1, out.err))
			continue
		}
		if out.text == "" {
			continue
		}
		texts = append(texts, out.text)
		scores = append(scores, out.confidence)
	}
	res.Text = strings.Join(texts, "\n\n")
	res.Confidence = confidence.Mean(scores)
	return nil
}

// imageOutcome is the result of recognizing one raster.
type imageOutcome struct {
	text       string
	confidence float64
	prep       *preprocess.Result
	err        error
}

// recognizeAll runs recognizeOne for every buffer on the shared pool.
// Outcomes keep the input order.
func (p *Pipeline) recognizeAll(ctx context.Context, bufs []*raster.Buffer, req *request) []imageOutcome {
	outcomes := make([]imageOutcome, len(bufs))
	var wg sync.WaitGroup
	for i, buf := range bufs {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i] = p.recognizeOne(ctx, buf, req)
		})
		if err != nil {
			wg.Done()
			outcomes[i].err = fmt.Errorf("docpipe: submit: %w", err)
		}
	}
	wg.Wait()
	return outcomes
}

func (p *Pipeline) recognizeOne(ctx context.Context, img *raster.Buffer, req *request) imageOutcome {
	pp := preprocess.New(req.preset,
		preprocess.WithLogger(p.logger),
		preprocess.WithObserver(p.observeStep(req.preset)))
	prep, err := pp.Process(img)
	if err != nil {
		return imageOutcome{err: err}
	}

	t0 := time.Now()
	rec, err := req.engine.Recognize(ctx, prep.Image, recognize.Options{Languages: req.languages})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.Observe(observability.MetricOCRImageMs, time.Since(t0), "engine", req.engine.Name())
	}
	if err != nil {
		return imageOutcome{prep: prep, err: fmt.Errorf("%w: %s: %w", ErrRecognition, req.engine.Name(), err)}
	}

	text := norm.NFC.String(strings.TrimSpace(rec.Text))
	score := confidence.Score(text)
	if rec.Confidence != nil {
		score = *rec.Confidence
	}
	return imageOutcome{text: text, confidence: score, prep: prep}
}

func (p *Pipeline) observeStep(preset preprocess.Preset) preprocess.Observer {
	if p.cfg.Metrics == nil {
		return nil
	}
	name := preset.String()
	return func(step string, d time.Duration) {
		p.cfg.Metrics.Observe(observability.MetricPreprocessStepMs, d, "step", step, "preset", name)
	}
}

func (p *Pipeline) record(res *Result, req *request, size int, d time.Duration, err error) {
	if m := p.cfg.Metrics; m != nil {
		m.Observe(observability.MetricOCRRequestMs, d, "engine", res.Engine, "format", string(res.Format))
		if err == nil {
			m.Gauge(observability.MetricOCRConfidence, res.Confidence, observability.UnitRatio,
				"engine", res.Engine, "source", string(res.Source))
		}
	}
	if p.cfg.Runs == nil {
		return
	}
	run := &observability.Run{
		RunID:      res.RunID,
		Engine:     res.Engine,
		Preset:     req.preset.String(),
		Format:     string(res.Format),
		Source:     string(res.Source),
		InputBytes: int64(size),
		Images:     res.Images,
		Confidence: res.Confidence,
		Warnings:   len(res.Warnings),
		DurationMs: d.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	p.cfg.Runs.LogAsync(run)
}

// IsClientError reports whether err was caused by the request rather than
// by the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrInvalidOptions) ||
		errors.Is(err, recognize.ErrUnknownEngine) ||
		errors.Is(err, preprocess.ErrDecodeFailed) ||
		errors.Is(err, pdfraster.ErrMalformedDocument)
}
