package printer

import (
	"context"
	"errors"
	"testing"
)

type fakeSpooler struct {
	printers []Info
	def      string
	written  map[string][]byte
	writeErr error
}

func (f *fakeSpooler) Printers(ctx context.Context) ([]Info, error) {
	return f.printers, nil
}

func (f *fakeSpooler) Default(ctx context.Context) (string, error) {
	return f.def, nil
}

func (f *fakeSpooler) Write(ctx context.Context, name string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.written == nil {
		f.written = make(map[string][]byte)
	}
	f.written[name] = append(f.written[name], data...)
	return nil
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name       string
		printers   []Info
		def        string
		requested  string
		want       string
		wantReason Reason
	}{
		{
			name:       "requested and usable",
			printers:   []Info{{Name: "Kitchen-POS", Status: StatusIdle}, {Name: "Office", Status: StatusIdle}},
			def:        "Office",
			requested:  "Kitchen-POS",
			want:       "Kitchen-POS",
			wantReason: ReasonRequested,
		},
		{
			name:       "requested reporting error is still used",
			printers:   []Info{{Name: "Bar-TM20", Status: StatusError}},
			requested:  "Bar-TM20",
			want:       "Bar-TM20",
			wantReason: ReasonRequested,
		},
		{
			name:       "thermal default preferred when nothing requested",
			printers:   []Info{{Name: "Epson-TM-T88", Status: StatusIdle}, {Name: "Receipt-2", Status: StatusIdle}},
			def:        "Epson-TM-T88",
			want:       "Epson-TM-T88",
			wantReason: ReasonThermalDefault,
		},
		{
			name:       "requested missing falls back to thermal default",
			printers:   []Info{{Name: "Star-TSP100", Status: StatusIdle}},
			def:        "Star-TSP100",
			requested:  "Kitchen-POS",
			want:       "Star-TSP100",
			wantReason: ReasonThermalDefault,
		},
		{
			name:       "first thermal match when default is a laser",
			printers:   []Info{{Name: "HP-LaserJet", Status: StatusIdle}, {Name: "XPrinter-80mm", Status: StatusIdle}},
			def:        "HP-LaserJet",
			requested:  "Kitchen-POS",
			want:       "XPrinter-80mm",
			wantReason: ReasonThermalMatch,
		},
		{
			name:       "fatally offline thermal skipped",
			printers:   []Info{{Name: "Rongta-1", Status: StatusDisconnected}, {Name: "HP-LaserJet", Status: StatusIdle}},
			def:        "HP-LaserJet",
			want:       "HP-LaserJet",
			wantReason: ReasonSystemDefault,
		},
		{
			name:       "default flag on listed printer",
			printers:   []Info{{Name: "Office", Status: StatusIdle, Default: true}},
			want:       "Office",
			wantReason: ReasonSystemDefault,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := NewDirectory(&fakeSpooler{printers: tc.printers, def: tc.def}, Options{})
			sel, err := NewSelector(dir).Select(context.Background(), tc.requested)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if sel.Name != tc.want || sel.Reason != tc.wantReason {
				t.Fatalf("got %+v, want %s/%s", sel, tc.want, tc.wantReason)
			}
			if sel.Fallback() != (tc.requested != "" && tc.wantReason != ReasonRequested) {
				t.Fatalf("fallback = %v for %+v", sel.Fallback(), sel)
			}
		})
	}
}

func TestSelect_NeverReturnsFatallyOffline(t *testing.T) {
	printers := []Info{
		{Name: "Kitchen-POS", Status: StatusUnavailable},
		{Name: "Bar-Thermal", Status: StatusDisconnected},
		{Name: "Office", Status: StatusDisconnected},
	}
	dir := NewDirectory(&fakeSpooler{printers: printers, def: "Office"}, Options{})

	for _, requested := range []string{"", "Kitchen-POS", "Bar-Thermal", "Office", "Ghost"} {
		sel, err := NewSelector(dir).Select(context.Background(), requested)
		if !errors.Is(err, ErrNoPrinterAvailable) {
			t.Fatalf("requested=%q: got %+v, err %v", requested, sel, err)
		}
	}
}

func TestSelect_FatalStatusesConfigurable(t *testing.T) {
	printers := []Info{
		{Name: "Kitchen-POS", Status: StatusError},
		{Name: "Bar-Thermal", Status: StatusIdle},
	}
	dir := NewDirectory(&fakeSpooler{printers: printers}, Options{
		FatalStatuses: []string{"disconnected", "unavailable", "error"},
	})

	sel, err := NewSelector(dir).Select(context.Background(), "Kitchen-POS")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Name != "Bar-Thermal" || !sel.Fallback() {
		t.Fatalf("got %+v", sel)
	}
}

func TestDirectory_Classify(t *testing.T) {
	dir := NewDirectory(&fakeSpooler{}, Options{})
	for name, want := range map[string]bool{
		"EPSON_TM-T20II":    true,
		"Kitchen Printer":   true,
		"zjiang-58":         true,
		"HP_LaserJet_P1102": false,
		"Brother_HL":        false,
	} {
		if got := dir.Classify(name); got != want {
			t.Fatalf("Classify(%q) = %v, want %v", name, got, want)
		}
	}

	custom := NewDirectory(&fakeSpooler{}, Options{ThermalKeywords: []string{"Label"}})
	if !custom.Classify("ZEBRA-label") || custom.Classify("Kitchen Printer") {
		t.Fatal("custom keywords not applied")
	}
}

func TestDirectory_IsFatallyOffline(t *testing.T) {
	dir := NewDirectory(&fakeSpooler{printers: []Info{
		{Name: "a", Status: StatusError},
		{Name: "b", Status: StatusUnavailable},
	}}, Options{})
	ctx := context.Background()

	if dir.IsFatallyOffline(ctx, "a") {
		t.Fatal("error status should be usable")
	}
	if !dir.IsFatallyOffline(ctx, "b") {
		t.Fatal("unavailable should be fatal")
	}
	if !dir.IsFatallyOffline(ctx, "missing") {
		t.Fatal("missing printer should be fatal")
	}
	if _, err := dir.Lookup(ctx, "missing"); !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("lookup err = %v", err)
	}
}

func TestDirectory_WriteWrapsError(t *testing.T) {
	boom := errors.New("paper jam")
	dir := NewDirectory(&fakeSpooler{writeErr: boom}, Options{})
	err := dir.Write(context.Background(), "x", []byte("hi"))
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestMultiSpooler(t *testing.T) {
	a := &fakeSpooler{printers: []Info{{Name: "Office", Status: StatusIdle}}}
	b := &fakeSpooler{printers: []Info{{Name: "Kitchen-POS", Status: StatusIdle}, {Name: "Office", Status: StatusError}}, def: "Kitchen-POS"}
	m := NewMultiSpooler(a, b)
	ctx := context.Background()

	printers, err := m.Printers(ctx)
	if err != nil || len(printers) != 2 {
		t.Fatalf("printers = %+v, err %v", printers, err)
	}
	if def, _ := m.Default(ctx); def != "Kitchen-POS" {
		t.Fatalf("default = %q", def)
	}
	if err := m.Write(ctx, "Kitchen-POS", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(b.written["Kitchen-POS"]) != "x" || a.written != nil {
		t.Fatal("write routed to wrong spooler")
	}
	if err := m.Write(ctx, "Ghost", nil); !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("err = %v", err)
	}
}
