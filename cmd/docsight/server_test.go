package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/docsight/dbopen"
	"github.com/hazyhaar/docsight/docpipe"
	"github.com/hazyhaar/docsight/observability"
	"github.com/hazyhaar/docsight/pdfraster"
	"github.com/hazyhaar/docsight/preprocess"
	"github.com/hazyhaar/docsight/raster"
	"github.com/hazyhaar/docsight/recognize"
	"github.com/hazyhaar/docsight/shield"
)

type fakeEngine struct {
	name  string
	text  string
	fail  bool
	langs atomic.Value
}

func (f *fakeEngine) Name() string                 { return f.name }
func (f *fakeEngine) Description() string          { return "fake " + f.name }
func (f *fakeEngine) SupportedFormats() []string   { return recognize.DefaultFormats }
func (f *fakeEngine) SupportedLanguages() []string { return []string{"eng"} }
func (f *fakeEngine) Recognize(_ context.Context, _ *raster.Buffer, opts recognize.Options) (*recognize.Result, error) {
	f.langs.Store(strings.Join(opts.Languages, "+"))
	if f.fail {
		return nil, errors.New("engine crashed")
	}
	return &recognize.Result{Text: f.text, Confidence: recognize.Confidence(0.8)}, nil
}

type testEnv struct {
	srv     *httptest.Server
	primary *fakeEngine
	runs    *observability.RunLog
}

func newTestEnv(t *testing.T, cfg docpipe.Config, stackCfg *shield.StackConfig, engines ...recognize.Engine) *testEnv {
	t.Helper()
	reg := recognize.NewRegistry()
	primary := &fakeEngine{name: "fake", text: "hello world"}
	if engines == nil {
		engines = []recognize.Engine{primary, &fakeEngine{name: "broken", fail: true}}
	}
	for _, e := range engines {
		reg.Register(e)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := dbopen.OpenMemory(t, dbopen.WithInit(observability.Init))
	runs := observability.NewRunLog(db, 10)
	t.Cleanup(func() { runs.Close() })
	cfg.Runs = runs
	cfg.Logger = logger

	pipe, err := docpipe.New(cfg, reg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pipe.Close)

	var stack []func(http.Handler) http.Handler
	if stackCfg != nil {
		stackCfg.Logger = logger
		done := make(chan struct{})
		t.Cleanup(func() { close(done) })
		stack, err = shield.DefaultStack(*stackCfg, done)
		if err != nil {
			t.Fatal(err)
		}
	}
	s := &server{pipe: pipe, runs: runs, version: "test", logger: logger}
	ts := httptest.NewServer(s.routes(stack, nil))
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, primary: primary, runs: runs}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	b := raster.New(w, h, raster.Gray)
	for i := range b.Pix {
		b.Pix[i] = 255
	}
	data, err := b.EncodePNG()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// multipartBody builds a form; a nil file omits the file part.
func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "upload.bin")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postOCR(t *testing.T, env *testEnv, path string, file []byte, fields map[string]string, header http.Header) *http.Response {
	t.Helper()
	body, ctype := multipartBody(t, file, fields)
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", ctype)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	// WHAT: /health answers ok with the build version.
	// WHY: Load balancers poll it without credentials.
	env := newTestEnv(t, docpipe.Config{}, nil)
	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	h := decode[healthResponse](t, resp)
	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Version != "test" {
		t.Errorf("got %d %+v", resp.StatusCode, h)
	}
}

func TestInfo(t *testing.T) {
	// WHAT: /info lists engines in registration order with the defaults.
	// WHY: Clients pick an engine name for /ocr/{engine} from here.
	env := newTestEnv(t, docpipe.Config{MaxFileSize: 1234, Languages: []string{"fra"}}, nil)
	resp, err := http.Get(env.srv.URL + "/info")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	info := decode[infoResponse](t, resp)
	if len(info.AvailableEngines) != 2 || info.AvailableEngines[0].Name != "fake" || info.AvailableEngines[1].Name != "broken" {
		t.Errorf("engines = %+v", info.AvailableEngines)
	}
	if info.DefaultEngine != "fake" || info.MaxFileSizeBytes != 1234 || info.DefaultLanguage != "fra" || info.DefaultPreset != "default" {
		t.Errorf("info = %+v", info)
	}
}

func TestOCR_Image(t *testing.T) {
	// WHAT: A PNG upload returns the engine text, native confidence and the
	// preprocessing summary.
	// WHY: The main path of the service.
	env := newTestEnv(t, docpipe.Config{}, nil)
	resp := postOCR(t, env, "/ocr?preset=none", pngBytes(t, 8, 8), map[string]string{"languages": "eng+fra"}, nil)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	out := decode[ocrResponse](t, resp)
	if out.Text != "hello world" || out.Engine != "fake" || out.Confidence != 0.8 {
		t.Errorf("got %+v", out)
	}
	if out.Warnings == nil || len(out.Warnings) != 0 {
		t.Errorf("warnings = %#v, want empty list", out.Warnings)
	}
	if out.Preprocessing == nil || out.Preprocessing.Preset != "none" || out.Preprocessing.Images != 1 {
		t.Errorf("preprocessing = %+v", out.Preprocessing)
	}
	if got := env.primary.langs.Load(); got != "eng+fra" {
		t.Errorf("languages = %v", got)
	}
	if out.RunID == "" || out.Source != docpipe.SourceOCR {
		t.Errorf("run_id %q source %q", out.RunID, out.Source)
	}
}

func TestOCR_PresetFormField(t *testing.T) {
	// WHAT: The preset may come from the form instead of the query.
	// WHY: Multipart clients cannot always edit the URL.
	env := newTestEnv(t, docpipe.Config{}, nil)
	resp := postOCR(t, env, "/ocr", pngBytes(t, 8, 8), map[string]string{"preset": "none"}, nil)
	out := decode[ocrResponse](t, resp)
	if out.Preprocessing == nil || out.Preprocessing.Preset != "none" {
		t.Errorf("preprocessing = %+v", out.Preprocessing)
	}
}

func TestOCR_Errors(t *testing.T) {
	// WHAT: Each failure class maps to its status and code.
	// WHY: Clients branch on the code, not the message.
	env := newTestEnv(t, docpipe.Config{MaxFileSize: 4096}, nil)
	png := pngBytes(t, 8, 8)

	tests := []struct {
		name   string
		path   string
		file   []byte
		fields map[string]string
		status int
		code   string
	}{
		{"missing file", "/ocr", nil, nil, 400, codeMissingFile},
		{"unknown engine", "/ocr/nope", png, nil, 400, codeInvalidRequest},
		{"bad preset", "/ocr?preset=extreme", png, nil, 400, codeInvalidRequest},
		{"unsupported", "/ocr", []byte("plain text, not an image"), nil, 400, codeUnsupported},
		{"too large", "/ocr", bytes.Repeat([]byte{0}, 5000), nil, 413, codeTooLarge},
		{"engine failure", "/ocr/broken?preset=none", png, nil, 500, codeProcessing},
		{"truncated png", "/ocr", png[:33], nil, 400, codePreprocessing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postOCR(t, env, tc.path, tc.file, tc.fields, nil)
			body := decode[map[string]string](t, resp)
			if resp.StatusCode != tc.status || body["code"] != tc.code {
				t.Errorf("got %d %v, want %d %s", resp.StatusCode, body, tc.status, tc.code)
			}
			if body["error"] == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestOCR_NoEngines(t *testing.T) {
	// WHAT: With nothing registered, /ocr answers INIT_ERROR.
	// WHY: The server starts without tesseract so /health stays up.
	env := newTestEnv(t, docpipe.Config{}, nil, []recognize.Engine{}...)
	resp := postOCR(t, env, "/ocr", pngBytes(t, 8, 8), nil, nil)
	body := decode[map[string]string](t, resp)
	if resp.StatusCode != 500 || body["code"] != codeInit {
		t.Errorf("got %d %v", resp.StatusCode, body)
	}
}

func TestOCR_APIKey(t *testing.T) {
	// WHAT: With a key hash configured, /ocr requires the key but /health does not.
	// WHY: Public health checks must keep working behind auth.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, docpipe.Config{}, &shield.StackConfig{
		MaxBody:    1 << 20,
		APIKeyHash: string(hash),
		Public:     []string{"/health", "/info"},
	})

	resp := postOCR(t, env, "/ocr?preset=none", pngBytes(t, 8, 8), nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status %d", resp.StatusCode)
	}
	resp = postOCR(t, env, "/ocr?preset=none", pngBytes(t, 8, 8), nil, http.Header{"X-Api-Key": {"s3cret"}})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key: status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("X-Request-ID missing")
	}

	h, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	h.Body.Close()
	if h.StatusCode != http.StatusOK {
		t.Errorf("health: status %d", h.StatusCode)
	}
}

func TestRuns(t *testing.T) {
	// WHAT: Successful and failed requests show up in /runs.
	// WHY: Operators audit recognition history without opening SQLite.
	env := newTestEnv(t, docpipe.Config{}, nil)
	postOCR(t, env, "/ocr?preset=none", pngBytes(t, 8, 8), nil, nil)
	postOCR(t, env, "/ocr/broken?preset=none", pngBytes(t, 8, 8), nil, nil)

	// Close drains the async queue; queries keep working on the open DB.
	env.runs.Close()

	resp, err := http.Get(env.srv.URL + "/runs")
	if err != nil {
		t.Fatal(err)
	}
	runs := decode[[]observability.Run](t, resp)
	resp.Body.Close()
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}

	resp, err = http.Get(env.srv.URL + "/runs?failed=true")
	if err != nil {
		t.Fatal(err)
	}
	failed := decode[[]observability.Run](t, resp)
	resp.Body.Close()
	if len(failed) != 1 || failed[0].Engine != "broken" || failed[0].Success {
		t.Errorf("failed = %+v", failed)
	}

	resp, err = http.Get(env.srv.URL + "/runs?since=yesterday")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad since: status %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	// WHAT: Wrapped sentinels keep their mapping.
	// WHY: The pipeline wraps errors with context before they reach HTTP.
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&docpipe.TooLargeError{Size: 2, Max: 1}, 413, codeTooLarge},
		{&docpipe.DimensionsError{Width: 4, Height: 4, Max: 15}, 413, codeTooLarge},
		{fmt.Errorf("x: %w", docpipe.ErrUnsupportedFormat), 400, codeUnsupported},
		{fmt.Errorf("x: %w", recognize.ErrUnknownEngine), 400, codeInvalidRequest},
		{recognize.ErrNoEngines, 500, codeInit},
		{&preprocess.Error{Kind: preprocess.DecodeFailure, Err: errors.New("bad")}, 400, codePreprocessing},
		{&preprocess.Error{Kind: preprocess.StepFailure, Step: "deskew", Err: errors.New("bad")}, 500, codePreprocessing},
		{fmt.Errorf("x: %w", pdfraster.ErrMalformedDocument), 400, codeProcessing},
		{fmt.Errorf("%w: fake: boom", docpipe.ErrRecognition), 500, codeProcessing},
		{errors.New("disk on fire"), 500, codeInternal},
	}
	for _, tc := range tests {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("statusFor(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestSummarize(t *testing.T) {
	// WHAT: Step timings of several images are summed per step name.
	// WHY: A scanned PDF yields one preprocessing result per image.
	got := summarize([]*preprocess.Result{
		{Preset: "minimal", TotalTimeMs: 3, Steps: []preprocess.StepTiming{{Name: "grayscale", Ms: 1}, {Name: "threshold", Ms: 2}}},
		{Preset: "minimal", TotalTimeMs: 5, Steps: []preprocess.StepTiming{{Name: "grayscale", Ms: 2}, {Name: "threshold", Ms: 3}}},
	})
	if got.Images != 2 || got.TotalTimeMs != 8 || len(got.Steps) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Steps[0] != (preprocess.StepTiming{Name: "grayscale", Ms: 3}) || got.Steps[1] != (preprocess.StepTiming{Name: "threshold", Ms: 5}) {
		t.Errorf("steps = %+v", got.Steps)
	}
	if summarize(nil) != nil {
		t.Error("summarize(nil) != nil")
	}
}
