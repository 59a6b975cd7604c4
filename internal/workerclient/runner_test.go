package workerclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orrn/printdispatch/internal/api/handlers"
	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/core"
	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/ticket"
)

type fakeAPI struct {
	mu        sync.Mutex
	jobs      []handlers.PendingJob
	stats     *core.Stats
	statsErr  error
	claimErr  error
	panicPoll bool
	calls     []string
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Pending(ctx context.Context) ([]handlers.PendingJob, error) {
	if f.panicPoll {
		panic("boom")
	}
	f.record("pending")
	return f.jobs, nil
}

func (f *fakeAPI) StartPrinting(ctx context.Context, id, clientID string) error {
	f.record("start:" + id)
	return f.claimErr
}

func (f *fakeAPI) MarkCompleted(ctx context.Context, id string) error {
	f.record("complete:" + id)
	return nil
}

func (f *fakeAPI) MarkFailed(ctx context.Context, id, message string) error {
	f.record("fail:" + id)
	return nil
}

func (f *fakeAPI) Retry(ctx context.Context, id string) error {
	f.record("retry:" + id)
	return nil
}

func (f *fakeAPI) Stats(ctx context.Context) (*core.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memSpooler struct {
	mu       sync.Mutex
	printers []printer.Info
	def      string
	writeErr error
	written  map[string][][]byte
}

func (s *memSpooler) Printers(ctx context.Context) ([]printer.Info, error) { return s.printers, nil }
func (s *memSpooler) Default(ctx context.Context) (string, error)          { return s.def, nil }

func (s *memSpooler) Write(ctx context.Context, name string, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written == nil {
		s.written = make(map[string][][]byte)
	}
	s.written[name] = append(s.written[name], data)
	return nil
}

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		ServerURL:           "http://print.local",
		APIToken:            "tok",
		RestaurantID:        7,
		PollIntervalSeconds: 1,
		AutoDetectPrinter:   true,
		MaxRetries:          2,
		ClientID:            "bar-pc",
	}
}

func localPrinters() *memSpooler {
	return &memSpooler{
		printers: []printer.Info{
			{Name: "Office-Laser", Status: printer.StatusIdle},
			{Name: "Kitchen-Star", Status: printer.StatusIdle},
			{Name: "EPSON-TM-T88", Status: printer.StatusError},
			{Name: "Bar-POS", Status: printer.StatusDisconnected},
		},
		def: "Office-Laser",
	}
}

func pendingJob(id, hint string, retries int) handlers.PendingJob {
	return handlers.PendingJob{
		ID:          id,
		JobType:     ticket.KindKitchen,
		Status:      core.StatusPending,
		Content:     []byte("\x1b@" + id),
		PrinterName: hint,
		OrderNumber: "A-" + id,
		RetryCount:  retries,
	}
}

func newRunner(t *testing.T, api API, spooler *memSpooler, cfg config.WorkerConfig, log *zap.Logger) *Runner {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	return NewRunner(api, printer.NewDirectory(spooler, printer.Options{}), cfg, log)
}

func TestTickPrintsOnHintedPrinter(t *testing.T) {
	api := &fakeAPI{jobs: []handlers.PendingJob{pendingJob("1", "Kitchen-Star", 0)}}
	sp := localPrinters()
	newRunner(t, api, sp, workerConfig(), nil).Tick(context.Background())

	if got := sp.written["Kitchen-Star"]; len(got) != 1 || string(got[0]) != "\x1b@1" {
		t.Fatalf("written = %q", sp.written)
	}
	want := []string{"pending", "start:1", "complete:1"}
	if got := api.recorded(); !equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestTickErrorStatusPrinterIsUsable(t *testing.T) {
	api := &fakeAPI{jobs: []handlers.PendingJob{pendingJob("1", "EPSON-TM-T88", 0)}}
	sp := localPrinters()
	newRunner(t, api, sp, workerConfig(), nil).Tick(context.Background())

	if len(sp.written["EPSON-TM-T88"]) != 1 {
		t.Fatalf("written = %q", sp.written)
	}
}

func TestTickConfiguredFatalStatusFallsBack(t *testing.T) {
	api := &fakeAPI{jobs: []handlers.PendingJob{pendingJob("1", "EPSON-TM-T88", 0)}}
	sp := localPrinters()
	cfg := workerConfig()
	cfg.Printers.FatalStatuses = []string{"disconnected", "unavailable", "error"}
	directory := printer.NewDirectory(sp, printer.Options{FatalStatuses: cfg.Printers.FatalStatuses})
	NewRunner(api, directory, cfg, zaptest.NewLogger(t)).Tick(context.Background())

	if len(sp.written["EPSON-TM-T88"]) != 0 || len(sp.written["Kitchen-Star"]) != 1 {
		t.Fatalf("written = %q", sp.written)
	}
	want := []string{"pending", "start:1", "complete:1"}
	if got := api.recorded(); !equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestTickLogsFallbackAtWarn(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	api := &fakeAPI{jobs: []handlers.PendingJob{
		pendingJob("1", "Bar-POS", 0),
		pendingJob("2", "", 0),
	}}
	sp := localPrinters()
	newRunner(t, api, sp, workerConfig(), zap.New(observed)).Tick(context.Background())

	if len(sp.written["Kitchen-Star"]) != 2 {
		t.Fatalf("written = %q", sp.written)
	}

	fallbacks := logs.FilterMessage("using fallback printer").All()
	if len(fallbacks) != 1 {
		t.Fatalf("fallback entries = %d, want 1", len(fallbacks))
	}
	entry := fallbacks[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("fallback level = %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["requested"] != "Bar-POS" || fields["printer"] != "Kitchen-Star" || fields["reason"] != string(printer.ReasonThermalMatch) {
		t.Errorf("fallback fields = %v", fields)
	}

	printed := logs.FilterMessage("job printed").All()
	if len(printed) != 2 || printed[0].Level != zapcore.InfoLevel {
		t.Errorf("printed entries = %v", printed)
	}
}

func TestResolvePrinterOrder(t *testing.T) {
	tests := []struct {
		name       string
		hint       string
		configured string
		autoDetect bool
		want       string
		reason     printer.Reason
		wantErr    bool
	}{
		{"hint present", "Office-Laser", "Kitchen-Star", true, "Office-Laser", printer.ReasonRequested, false},
		{"hint missing uses configured", "Gone", "Office-Laser", true, "Office-Laser", printer.ReasonConfigured, false},
		{"nothing given auto-detects", "", "", true, "Kitchen-Star", printer.ReasonThermalMatch, false},
		{"configured offline auto-detects", "", "Bar-POS", true, "Kitchen-Star", printer.ReasonThermalMatch, false},
		{"auto-detect disabled", "Gone", "", false, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := workerConfig()
			cfg.PrinterName = tt.configured
			cfg.AutoDetectPrinter = tt.autoDetect
			r := newRunner(t, &fakeAPI{}, localPrinters(), cfg, nil)

			sel, err := r.resolvePrinter(context.Background(), tt.hint)
			if tt.wantErr {
				if !errors.Is(err, printer.ErrNoPrinterAvailable) {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if sel.Name != tt.want || sel.Reason != tt.reason {
				t.Errorf("selection = %+v, want %s/%s", sel, tt.want, tt.reason)
			}
		})
	}
}

func TestTickFailureRetriesWithinBudget(t *testing.T) {
	api := &fakeAPI{jobs: []handlers.PendingJob{
		pendingJob("1", "Kitchen-Star", 0),
		pendingJob("2", "Kitchen-Star", 2),
	}}
	sp := localPrinters()
	sp.writeErr = errors.New("paper out")
	newRunner(t, api, sp, workerConfig(), nil).Tick(context.Background())

	want := []string{"pending", "start:1", "fail:1", "retry:1", "start:2", "fail:2"}
	if got := api.recorded(); !equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestTickSkipsJobsClaimedElsewhere(t *testing.T) {
	api := &fakeAPI{
		jobs:     []handlers.PendingJob{pendingJob("1", "", 0)},
		claimErr: ErrRejected,
	}
	sp := localPrinters()
	newRunner(t, api, sp, workerConfig(), nil).Tick(context.Background())

	if len(sp.written) != 0 {
		t.Errorf("printed a job it did not claim: %q", sp.written)
	}
	want := []string{"pending", "start:1"}
	if got := api.recorded(); !equal(got, want) {
		t.Errorf("calls = %v", got)
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	api := &fakeAPI{panicPoll: true}
	newRunner(t, api, localPrinters(), workerConfig(), nil).Tick(context.Background())
}

func TestCheckStartup(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeAPI
		wantErr bool
	}{
		{"ok", &fakeAPI{stats: &core.Stats{RestaurantID: 7}}, false},
		{"unauthorized", &fakeAPI{statsErr: ErrUnauthorized}, true},
		{"wrong restaurant", &fakeAPI{stats: &core.Stats{RestaurantID: 8}}, true},
		{"server down", &fakeAPI{statsErr: ErrServer}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newRunner(t, tt.api, localPrinters(), workerConfig(), nil).CheckStartup(context.Background())
			if tt.wantErr != errors.Is(err, ErrStartup) {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSupervisorStopsOnFatalStartup(t *testing.T) {
	good := newRunner(t, &fakeAPI{stats: &core.Stats{RestaurantID: 7}}, localPrinters(), workerConfig(), nil)
	bad := newRunner(t, &fakeAPI{statsErr: ErrUnauthorized}, localPrinters(), workerConfig(), nil)

	done := make(chan error, 1)
	go func() { done <- NewSupervisor(zaptest.NewLogger(t), good, bad).Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStartup) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisorShutdown(t *testing.T) {
	r := newRunner(t, &fakeAPI{stats: &core.Stats{RestaurantID: 7}}, localPrinters(), workerConfig(), nil)
	s := NewSupervisor(zaptest.NewLogger(t), r)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	s.Shutdown()
	s.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTickConfiguredPrinterMissingFallsBack(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	cfg := workerConfig()
	cfg.PrinterName = "Kitchen-POS"
	sp := localPrinters()
	sp.def = "EPSON-TM-T88"
	api := &fakeAPI{jobs: []handlers.PendingJob{pendingJob("1", "", 0)}}

	newRunner(t, api, sp, cfg, zap.New(observed)).Tick(context.Background())

	if len(sp.written["EPSON-TM-T88"]) != 1 {
		t.Fatalf("written = %q", sp.written)
	}
	entries := logs.FilterMessage("using fallback printer").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("fallback log = %v", entries)
	}
	if got := entries[0].ContextMap()["reason"]; got != string(printer.ReasonThermalDefault) {
		t.Errorf("reason = %v", got)
	}
}
