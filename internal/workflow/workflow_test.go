package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/converter"
	"github.com/platinummonkey/pastemark/internal/gate"
	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/metrics"
	"github.com/platinummonkey/pastemark/internal/provider"
	"github.com/platinummonkey/pastemark/internal/registry"
	"github.com/platinummonkey/pastemark/internal/state"
	"github.com/platinummonkey/pastemark/internal/storage"
	"github.com/platinummonkey/pastemark/internal/vault"
)

const testModel = "OpenAI/gpt-4o-mini-2024-07-18"

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeAdapter records what the orchestrator asks of one session
type fakeAdapter struct {
	desc    registry.Descriptor
	text    string
	err     error
	initErr error
	block   chan struct{}

	images  int
	apiKey  string
	summary string
	closed  bool
}

func (f *fakeAdapter) Init(apiKey string) error {
	f.apiKey = apiKey
	return f.initErr
}

func (f *fakeAdapter) AddImage(raw []byte) error {
	if _, err := imageprep.Decode(raw); err != nil {
		return err
	}
	f.images++
	return nil
}

func (f *fakeAdapter) TaskOCR(ctx context.Context) (string, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", apperrors.NewProviderCallError(f.Vendor(), f.err)
	}
	return f.text, nil
}

func (f *fakeAdapter) TaskSummarize(ctx context.Context, text string) (string, error) {
	f.summary = text
	if f.err != nil {
		return "", apperrors.NewProviderCallError(f.Vendor(), f.err)
	}
	return "- " + text, nil
}

func (f *fakeAdapter) Vendor() string                  { return f.desc.PlatformID }
func (f *fakeAdapter) Descriptor() registry.Descriptor { return f.desc }
func (f *fakeAdapter) ImageSpec() imageprep.Spec       { return imageprep.Spec{} }

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

// fakeFactory hands out fakeAdapters built from a template and keeps every one it made
type fakeFactory struct {
	mu       sync.Mutex
	template fakeAdapter
	made     []*fakeAdapter
}

func (ff *fakeFactory) New(desc registry.Descriptor) (provider.Adapter, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	a := &fakeAdapter{
		desc:    desc,
		text:    ff.template.text,
		err:     ff.template.err,
		initErr: ff.template.initErr,
		block:   ff.template.block,
	}
	ff.made = append(ff.made, a)
	return a, nil
}

type fixture struct {
	orch    *Orchestrator
	store   *storage.LocalStore
	vault   *vault.Vault
	metrics *metrics.Metrics
	factory *fakeFactory
}

func newFixture(t *testing.T, model string, format converter.OutputFormat) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewLocalStore(filepath.Join(dir, "attachments"))
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	conv, err := converter.New(&converter.Config{Format: format, Storage: store, Metrics: m, Logger: logger.Nop()})
	if err != nil {
		t.Fatal(err)
	}

	v, err := vault.Open(state.NewManager(filepath.Join(dir, "state.json")), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ff := &fakeFactory{template: fakeAdapter{text: "# Heading"}}
	orch, err := New(&Config{
		Converter:  conv,
		Vault:      v,
		Model:      model,
		NewAdapter: ff.New,
		Metrics:    m,
		Logger:     logger.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{orch: orch, store: store, vault: v, metrics: m, factory: ff}
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
	if _, err := New(&Config{}); err == nil {
		t.Error("New() without converter should fail")
	}
}

func TestPasteImages(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)

	result, err := fx.orch.PasteImages(context.Background(), [][]byte{testPNG(t), testPNG(t)})
	if err != nil {
		t.Fatalf("PasteImages() error = %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 0 {
		t.Fatalf("result = %s", result)
	}

	seen := map[string]bool{}
	for _, item := range result.Items {
		if !strings.HasPrefix(item.Embed, "![[PastedImage_") || !strings.HasSuffix(item.Embed, ".png]]") {
			t.Errorf("Embed = %q", item.Embed)
		}
		if _, err := os.Stat(fx.store.FullPath(item.Saved.Path)); err != nil {
			t.Errorf("saved file missing: %v", err)
		}
		seen[item.Saved.Path] = true
	}
	if len(seen) != 2 {
		t.Error("images were saved to the same path")
	}
	if fx.orch.Busy() {
		t.Error("gate still held after PasteImages")
	}
}

func TestPasteImages_PartialFailure(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatWebP)

	result, err := fx.orch.PasteImages(context.Background(), [][]byte{testPNG(t), []byte("junk"), testPNG(t)})
	if err != nil {
		t.Fatalf("PasteImages() error = %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 1 {
		t.Fatalf("result = %s", result)
	}
	if !apperrors.IsKind(result.Items[1].Err, apperrors.KindImageDecode) {
		t.Errorf("item 1 error = %v", result.Items[1].Err)
	}
	if result.Items[0].Err != nil || result.Items[2].Err != nil {
		t.Error("sibling images should succeed")
	}
	if got := strings.Count(result.Markdown(), "![["); got != 2 {
		t.Errorf("Markdown() has %d embeds", got)
	}
}

func TestPasteImages_Empty(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if _, err := fx.orch.PasteImages(context.Background(), nil); !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Errorf("error = %v", err)
	}
}

func TestOperations_Busy(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}

	token, err := fx.orch.gate.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	defer token.Release()

	ctx := context.Background()
	if _, err := fx.orch.PasteImages(ctx, [][]byte{testPNG(t)}); !errors.Is(err, gate.ErrBusy) {
		t.Errorf("PasteImages() error = %v, want ErrBusy", err)
	}
	if _, err := fx.orch.ConvertToMarkdown(ctx, [][]byte{testPNG(t)}, false); !errors.Is(err, gate.ErrBusy) {
		t.Errorf("ConvertToMarkdown() error = %v, want ErrBusy", err)
	}
	if _, err := fx.orch.Summarize(ctx, "text"); !errors.Is(err, gate.ErrBusy) {
		t.Errorf("Summarize() error = %v, want ErrBusy", err)
	}

	if got := counterValue(t, fx.metrics, "pastemark_gate_rejections_total"); got != 3 {
		t.Errorf("gate rejections = %v, want 3", got)
	}
	if len(fx.factory.made) != 0 {
		t.Error("no adapter should be built while busy")
	}
}

func TestConvertToMarkdown(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}

	images := [][]byte{testPNG(t), testPNG(t), testPNG(t)}
	result, err := fx.orch.ConvertToMarkdown(context.Background(), images, false)
	if err != nil {
		t.Fatalf("ConvertToMarkdown() error = %v", err)
	}
	if result.SuccessCount != 3 || result.Model != testModel {
		t.Fatalf("result = %s", result)
	}

	if len(fx.factory.made) != 3 {
		t.Fatalf("adapters built = %d, want one per image", len(fx.factory.made))
	}
	for _, a := range fx.factory.made {
		if a.images != 1 || a.apiKey != "sk-test" || !a.closed {
			t.Errorf("session images=%d key=%q closed=%v", a.images, a.apiKey, a.closed)
		}
	}

	for _, item := range result.Items {
		if item.Text != "# Heading" || item.Embed != "" {
			t.Errorf("item = %+v", item)
		}
	}

	entries, _ := os.ReadDir(fx.store.Root())
	if len(entries) != 0 {
		t.Errorf("no image should be saved without includeImage, found %d", len(entries))
	}
	if got := counterValue(t, fx.metrics, "pastemark_provider_calls_total"); got != 3 {
		t.Errorf("provider calls = %v", got)
	}
}

func TestConvertToMarkdown_IncludeImage(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}

	result, err := fx.orch.ConvertToMarkdown(context.Background(), [][]byte{testPNG(t)}, true)
	if err != nil {
		t.Fatal(err)
	}

	item := result.Items[0]
	if !strings.HasPrefix(item.Embed, "![[") {
		t.Fatalf("Embed = %q", item.Embed)
	}
	want := item.Embed + "\n\n# Heading"
	if got := result.Markdown(); got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
}

func TestConvertToMarkdown_ProviderError(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}
	fx.factory.template.err = errors.New("connection reset")

	result, err := fx.orch.ConvertToMarkdown(context.Background(), [][]byte{testPNG(t)}, true)
	if err != nil {
		t.Fatal(err)
	}

	item := result.Items[0]
	if !apperrors.IsKind(item.Err, apperrors.KindProviderCall) || apperrors.VendorOf(item.Err) != "OpenAI" {
		t.Errorf("item error = %v", item.Err)
	}
	if item.Embed != "" {
		t.Error("image should not be saved when OCR fails")
	}
	if result.FailureCount != 1 || result.Markdown() != "" {
		t.Errorf("result = %s", result)
	}
}

func TestConvertToMarkdown_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		model string
		key   string
	}{
		{"no model selected", "", ""},
		{"unknown model", "OpenAI/gpt-99", ""},
		{"missing key", testModel, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.model, converter.FormatPNG)

			_, err := fx.orch.ConvertToMarkdown(context.Background(), [][]byte{testPNG(t)}, false)
			if !apperrors.IsKind(err, apperrors.KindConfiguration) {
				t.Errorf("error = %v, want configuration error", err)
			}
			if fx.orch.Busy() {
				t.Error("gate not released after configuration error")
			}
			if len(fx.factory.made) != 0 {
				t.Error("no adapter should be built")
			}
		})
	}
}

func TestConvertToMarkdown_RejectsConcurrentSummarize(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	fx.factory.template.block = release

	done := make(chan error, 1)
	go func() {
		_, err := fx.orch.ConvertToMarkdown(context.Background(), [][]byte{testPNG(t)}, false)
		done <- err
	}()

	for !fx.orch.Busy() {
		runtime.Gosched()
	}

	if _, err := fx.orch.Summarize(context.Background(), "some text"); !errors.Is(err, gate.ErrBusy) {
		t.Errorf("Summarize() error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("ConvertToMarkdown() error = %v", err)
	}
	if _, err := fx.orch.Summarize(context.Background(), "some text"); err != nil {
		t.Errorf("Summarize() after release error = %v", err)
	}
}

func TestSummarize(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}

	got, err := fx.orch.Summarize(context.Background(), "  meeting notes \n")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "- meeting notes" {
		t.Errorf("Summarize() = %q", got)
	}
	if a := fx.factory.made[0]; a.summary != "meeting notes" || !a.closed {
		t.Errorf("adapter saw %q closed=%v", a.summary, a.closed)
	}
}

func TestSummarize_BlankRejectedBeforeGate(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)

	token, _ := fx.orch.gate.TryAcquire()
	defer token.Release()

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := fx.orch.Summarize(context.Background(), text); !apperrors.IsKind(err, apperrors.KindConfiguration) {
			t.Errorf("Summarize(%q) error = %v, want configuration error", text, err)
		}
	}
	if got := counterValue(t, fx.metrics, "pastemark_gate_rejections_total"); got != 0 {
		t.Errorf("gate rejections = %v", got)
	}
}

func TestSummarize_InvalidStoredKey(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}
	fx.factory.template.initErr = apperrors.NewConfigurationError("bad key", nil)

	if _, err := fx.orch.Summarize(context.Background(), "text"); !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Errorf("error = %v", err)
	}
}

func TestSummarize_OpenAICompatibleEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini-2024-07-18",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "- summary"},
			}},
		})
	}))
	defer srv.Close()

	fx := newFixture(t, testModel, converter.FormatPNG)
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}
	fx.orch.newAdapter = DefaultAdapterFactory(logger.Nop(), provider.WithBaseURL(srv.URL))

	got, err := fx.orch.Summarize(context.Background(), "long text")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "- summary" || calls.Load() != 1 {
		t.Errorf("Summarize() = %q after %d calls", got, calls.Load())
	}
}

func TestEmbedMarkdown(t *testing.T) {
	tests := []struct {
		saved converter.SaveResult
		want  string
	}{
		{converter.SaveResult{Path: "PastedImage_1.webp"}, "![[PastedImage_1.webp]]"},
		{converter.SaveResult{Path: "sub/a b.png"}, "![[sub/a b.png]]"},
		{converter.SaveResult{URL: "https://cdn.example/x.webp"}, "https://cdn.example/x.webp"},
		{converter.SaveResult{}, ""},
	}

	for _, tt := range tests {
		if got := EmbedMarkdown(tt.saved); got != tt.want {
			t.Errorf("EmbedMarkdown(%+v) = %q, want %q", tt.saved, got, tt.want)
		}
	}
}

type finishedCall struct {
	operation     string
	items, failed int
	err           error
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []finishedCall
}

func (r *recordingObserver) Started(operation string, items int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, operation)
}

func (r *recordingObserver) Finished(operation string, items, failed int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, finishedCall{operation, items, failed, err})
}

func TestObserver(t *testing.T) {
	fx := newFixture(t, testModel, converter.FormatPNG)
	obs := &recordingObserver{}
	fx.orch.observer = obs
	ctx := context.Background()

	if _, err := fx.orch.PasteImages(ctx, [][]byte{testPNG(t), []byte("bad")}); err != nil {
		t.Fatal(err)
	}
	// no key stored yet
	if _, err := fx.orch.Summarize(ctx, "text"); err == nil {
		t.Fatal("Summarize() should fail without a key")
	}
	if err := fx.vault.Set(testModel, "sk-test"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.orch.ConvertToMarkdown(ctx, [][]byte{testPNG(t)}, false); err != nil {
		t.Fatal(err)
	}

	// rejected calls are not reported
	token, _ := fx.orch.gate.TryAcquire()
	_, _ = fx.orch.Summarize(ctx, "text")
	token.Release()

	if len(obs.started) != 3 || len(obs.finished) != 3 {
		t.Fatalf("started = %v, finished = %+v", obs.started, obs.finished)
	}

	paste := obs.finished[0]
	if paste.operation != "paste" || paste.items != 2 || paste.failed != 1 || paste.err == nil {
		t.Errorf("paste = %+v", paste)
	}
	summarize := obs.finished[1]
	if summarize.operation != "summarize" || summarize.failed != 1 || !apperrors.IsKind(summarize.err, apperrors.KindConfiguration) {
		t.Errorf("summarize = %+v", summarize)
	}
	ocr := obs.finished[2]
	if ocr.operation != "ocr" || ocr.failed != 0 || ocr.err != nil {
		t.Errorf("ocr = %+v", ocr)
	}
}
