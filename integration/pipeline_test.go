package integration

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/leasescan/internal/config"
	"github.com/platinummonkey/leasescan/internal/form"
	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/ocr"
	"github.com/platinummonkey/leasescan/internal/preprocess"
	"github.com/platinummonkey/leasescan/internal/review"
	"github.com/platinummonkey/leasescan/internal/scan"
)

const tenantPage = `РОССИЙСКАЯ ФЕДЕРАЦИЯ
Паспорт выдан ГУ МВД России по г. Москве
Дата выдачи 15.03.2020 Код подразделения 770-001
45 06 123456
Иванов Петр Сергеевич`

const secondPage = `Паспорт выдан ОУФМС России по Тверской обл.
Дата выдачи 01.02.2018 Код подразделения 690-002
4511 654321
Смирнова Анна Викторовна`

// scriptedRuntime hands out an engine whose responses are driven by the test.
type scriptedRuntime struct {
	engine *scriptedEngine
}

func (r *scriptedRuntime) Name() string { return "scripted" }

func (r *scriptedRuntime) Initialize(ctx context.Context, lang ocr.Language) (ocr.Engine, error) {
	return r.engine, nil
}

type scriptedEngine struct {
	started chan struct{}
	replies chan string
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		started: make(chan struct{}, 4),
		replies: make(chan string, 4),
	}
}

func (e *scriptedEngine) Recognize(ctx context.Context, in ocr.Input) (*ocr.Result, error) {
	e.started <- struct{}{}
	select {
	case text := <-e.replies:
		return &ocr.Result{Text: text, Metadata: ocr.Metadata{Engine: "scripted", Confidence: 90}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *scriptedEngine) Close() error { return nil }

func passportImage() preprocess.RawImage {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.SetGray(x, 10, color.Gray{Y: 30})
	}
	return preprocess.NewRawImage(img, "image/png", preprocess.SourceFile)
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
engine: tesseract
ocr-language: rus
binarize-threshold: 100
recognize-timeout: 5s
form-file: ` + filepath.Join(tmpDir, "data", "form.json") + `
log-level: warn
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startService(t *testing.T, cfg *config.Config, engine *scriptedEngine) *ocr.Service {
	t.Helper()
	lang, err := ocr.ParseLanguage(cfg.OCRLanguage)
	if err != nil {
		t.Fatalf("ParseLanguage() error = %v", err)
	}

	svc := ocr.NewService(&scriptedRuntime{engine: engine}, lang,
		ocr.WithServiceLogger(logger.NewNop()),
		ocr.WithRecognizeTimeout(cfg.RecognizeTimeout),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newPipeline(cfg *config.Config, svc *ocr.Service, store *form.Store, operator review.Operator) *scan.Pipeline {
	presenter := review.NewPresenter(store, operator, review.WithLogger(logger.NewNop()))
	return scan.NewPipeline(svc, presenter,
		scan.WithPreprocessor(preprocess.New(preprocess.WithThreshold(uint8(cfg.BinarizeThreshold)))),
		scan.WithPreprocessing(cfg.Preprocess),
		scan.WithLogger(logger.NewNop()),
	)
}

func accept() review.Operator {
	return review.OperatorFunc(func(ctx context.Context, view review.View) (review.Decision, error) {
		return review.Decision{Action: review.ActionAccept}, nil
	})
}

// TestScanPersistsAcrossReload runs a scan through the real service and
// checks the accepted values survive reopening the form file.
func TestScanPersistsAcrossReload(t *testing.T) {
	cfg := loadTestConfig(t)

	store, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}

	engine := newScriptedEngine()
	engine.replies <- tenantPage
	svc := startService(t, cfg, engine)

	sess, err := scan.NewSession(form.RoleTenant)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	outcome := newPipeline(cfg, svc, store, accept()).Process(context.Background(), sess, passportImage())
	if outcome.Status != scan.StatusApplied {
		t.Fatalf("expected status applied, got %s (err: %v)", outcome.Status, outcome.Err)
	}

	reopened, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}

	want := map[form.Key]string{
		form.TenantName:         "Иванов Петр Сергеевич",
		form.TenantPassport:     "4506 123456",
		form.TenantIssueDate:    "2020-03-15",
		form.TenantDivisionCode: "770-001",
	}
	for k, v := range want {
		if got, _ := reopened.Value(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got, ok := reopened.Value(form.TenantIssuedBy); !ok || got == "" {
		t.Error("expected issuing authority to be persisted")
	}
	if _, ok := reopened.Value(form.LandlordName); ok {
		t.Error("landlord fields must not be touched by a tenant scan")
	}
	if len(reopened.Pending()) != 0 {
		t.Error("pending suggestions must never be persisted")
	}
}

// TestNewerScanSupersedesSlowerOne starts a scan, starts a second one while
// the first is still recognizing, then lets both finish. Only the second
// may reach the form.
func TestNewerScanSupersedesSlowerOne(t *testing.T) {
	cfg := loadTestConfig(t)

	store, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}

	engine := newScriptedEngine()
	svc := startService(t, cfg, engine)
	pipeline := newPipeline(cfg, svc, store, accept())

	sess, err := scan.NewSession(form.RoleLandlord)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	first := make(chan *scan.Outcome, 1)
	go func() { first <- pipeline.Process(context.Background(), sess, passportImage()) }()

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first recognition never started")
	}

	second := make(chan *scan.Outcome, 1)
	go func() { second <- pipeline.Process(context.Background(), sess, passportImage()) }()

	// The second attempt queues behind the service slot, so it has taken
	// its sequence number once Latest moves on.
	deadline := time.Now().Add(5 * time.Second)
	for sess.Latest() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second scan never started")
		}
		time.Sleep(time.Millisecond)
	}

	engine.replies <- tenantPage
	engine.replies <- secondPage

	got1, got2 := <-first, <-second
	if got1.Status != scan.StatusStale {
		t.Errorf("first scan: expected stale, got %s", got1.Status)
	}
	if got2.Status != scan.StatusApplied {
		t.Fatalf("second scan: expected applied, got %s (err: %v)", got2.Status, got2.Err)
	}

	if got, _ := store.Value(form.LandlordPassport); got != "4511 654321" {
		t.Errorf("LandlordPassport = %q, want value from the newer scan", got)
	}
	if got, _ := store.Value(form.LandlordName); got != "Смирнова Анна Викторовна" {
		t.Errorf("LandlordName = %q, want value from the newer scan", got)
	}
}

// TestEngineFailureFallsBackToManualEntry checks an engine that never
// loads leaves the form intact and manual entry still works.
func TestEngineFailureFallsBackToManualEntry(t *testing.T) {
	cfg := loadTestConfig(t)

	store, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if err := store.Set(form.TenantRegistration, "г. Москва, ул. Ленина, д. 1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	svc := ocr.NewService(failingRuntime{}, ocr.LanguageRussian, ocr.WithServiceLogger(logger.NewNop()))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Wait(context.Background()); !errors.Is(err, ocr.ErrEngineUnavailable) {
		t.Fatalf("Wait() error = %v, want ErrEngineUnavailable", err)
	}
	defer svc.Close()

	sess, _ := scan.NewSession(form.RoleTenant)
	outcome := newPipeline(cfg, svc, store, accept()).Process(context.Background(), sess, passportImage())

	if outcome.Status != scan.StatusManualEntry {
		t.Fatalf("expected manual entry, got %s", outcome.Status)
	}
	if !errors.Is(outcome.Err, ocr.ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", outcome.Err)
	}
	if got, _ := store.Value(form.TenantRegistration); got != "г. Москва, ул. Ленина, д. 1" {
		t.Errorf("manual value changed: %q", got)
	}
	if err := store.Set(form.TenantName, "Иванов Петр Сергеевич"); err != nil {
		t.Errorf("manual entry after failure: %v", err)
	}
}

type failingRuntime struct{}

func (failingRuntime) Name() string { return "missing" }

func (failingRuntime) Initialize(ctx context.Context, lang ocr.Language) (ocr.Engine, error) {
	return nil, errors.New("rus.traineddata not found")
}
