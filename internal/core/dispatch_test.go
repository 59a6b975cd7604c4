package core

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/db"
	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/ticket"
)

type fakePrinter struct {
	printed map[string][][]byte
	err     error
}

func (f *fakePrinter) Print(ctx context.Context, requested string, data []byte) (printer.Selection, error) {
	if f.err != nil {
		return printer.Selection{}, f.err
	}
	if f.printed == nil {
		f.printed = make(map[string][][]byte)
	}
	name := requested
	reason := printer.ReasonRequested
	if name == "" {
		name, reason = "Default-POS", printer.ReasonThermalDefault
	}
	f.printed[name] = append(f.printed[name], data)
	return printer.Selection{Name: name, Reason: reason, Requested: requested}, nil
}

func seedProfiles(t *testing.T, d *db.DB) {
	t.Helper()
	ctx := context.Background()
	p := d.Profiles()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(p.UpsertRestaurant(ctx, &db.Restaurant{ID: 1, Name: "Trattoria"}))
	must(p.UpsertRestaurant(ctx, &db.Restaurant{ID: 2, Name: "Trattoria Downtown", ParentID: sql.NullInt64{Int64: 1, Valid: true}}))
	must(p.UpsertRestaurant(ctx, &db.Restaurant{ID: 3, Name: "Noodle Bar"}))
	must(p.UpsertProfile(ctx, &db.PrintProfile{
		RestaurantID:       1,
		AutoPrintKitchen:   true,
		AutoPrintBar:       true,
		AutoPrintReceipt:   true,
		KitchenPrinterName: "Kitchen-POS",
		TaxPercent:         10,
	}))
}

func order() ticket.Order {
	return ticket.Order{
		Number: "A-7",
		Staff:  ticket.Staff{Role: ticket.RoleWaiter, Name: "Dana"},
		Items: []ticket.LineItem{
			{Name: "Risotto", Quantity: 1, Station: ticket.StationKitchen, UnitPrice: 1400},
			{Name: "Tiramisu", Quantity: 2, Station: ticket.StationKitchen, UnitPrice: 700},
			{Name: "Spritz", Quantity: 1, Station: ticket.StationBar, UnitPrice: 900},
			{Name: "Salad bar", Quantity: 1, Station: ticket.StationBuffet, UnitPrice: 1200},
		},
	}
}

func TestProfileResolver(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	r := NewProfileResolver(d.Profiles())
	ctx := context.Background()

	branch, err := r.Resolve(ctx, 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if branch.SourceID != 1 || branch.RestaurantName != "Trattoria Downtown" || !branch.Enabled(ticket.KindKitchen) {
		t.Fatalf("branch profile = %+v", branch)
	}

	none, err := r.Resolve(ctx, 3)
	if err != nil || none.SourceID != 0 || none.Enabled(ticket.KindKitchen) || none.PrinterFor(ticket.KindKitchen) != "" {
		t.Fatalf("unconfigured profile = %+v, err %v", none, err)
	}

	unknown, err := r.Resolve(ctx, 99)
	if err != nil || unknown.Enabled(ticket.KindReceipt) {
		t.Fatalf("unknown restaurant = %+v, err %v", unknown, err)
	}
}

func TestDispatchOrder_Queued(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	q := NewQueue(d.Jobs(), nil, zap.NewNop())
	disp := NewDispatcher(config.ModeQueued, ticket.NewFormatter(48, "$"), NewProfileResolver(d.Profiles()), q, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	report := disp.DispatchOrder(ctx, OrderEvent{RestaurantID: 2, Order: order()})
	if len(report.Warnings) != 0 {
		t.Fatalf("warnings = %v", report.Warnings)
	}
	// buffet auto-print is off
	if len(report.Jobs) != 2 {
		t.Fatalf("jobs = %v", report.Jobs)
	}

	pending, _ := q.FetchPending(ctx, 2)
	if len(pending) != 2 {
		t.Fatalf("pending = %d", len(pending))
	}
	kitchen := pending[0]
	if kitchen.JobType != ticket.KindKitchen || kitchen.PrinterName != "Kitchen-POS" || kitchen.RestaurantName != "Trattoria Downtown" || kitchen.OrderNumber != "A-7" {
		t.Fatalf("kitchen job = %+v", kitchen)
	}
	body := string(kitchen.Content)
	if !strings.Contains(body, "Risotto") || !strings.Contains(body, "Tiramisu") || strings.Contains(body, "Spritz") {
		t.Fatalf("kitchen content:\n%s", body)
	}
	if !strings.Contains(body, "Total Items: 2") {
		t.Fatalf("kitchen footer missing:\n%s", body)
	}
	if pending[1].JobType != ticket.KindBar || pending[1].PrinterName != "" {
		t.Fatalf("bar job = %+v", pending[1])
	}
}

func TestDispatchOrder_Direct(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	fp := &fakePrinter{}
	disp := NewDispatcher(config.ModeDirect, ticket.NewFormatter(48, "$"), NewProfileResolver(d.Profiles()), nil, fp, zaptest.NewLogger(t))

	report := disp.DispatchOrder(context.Background(), OrderEvent{RestaurantID: 1, Order: order()})
	if len(report.Printed) != 2 || len(report.Jobs) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(fp.printed["Kitchen-POS"]) != 1 || len(fp.printed["Default-POS"]) != 1 {
		t.Fatalf("printed = %v", fp.printed)
	}
}

func TestDispatchOrder_PrintFailureIsWarning(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	fp := &fakePrinter{err: printer.ErrNoPrinterAvailable}
	disp := NewDispatcher(config.ModeDirect, ticket.NewFormatter(48, "$"), NewProfileResolver(d.Profiles()), nil, fp, zap.NewNop())

	report := disp.DispatchOrder(context.Background(), OrderEvent{RestaurantID: 1, Order: order()})
	if len(report.Printed) != 0 || len(report.Warnings) != 2 {
		t.Fatalf("report = %+v", report)
	}
}

func TestDispatchOrder_MalformedOrderIsWarning(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	q := NewQueue(d.Jobs(), nil, zap.NewNop())
	disp := NewDispatcher(config.ModeQueued, ticket.NewFormatter(48, "$"), NewProfileResolver(d.Profiles()), q, nil, zap.NewNop())

	bad := order()
	bad.Items[0].Quantity = 0
	report := disp.DispatchOrder(context.Background(), OrderEvent{RestaurantID: 1, Order: bad})
	if len(report.Jobs) != 0 || len(report.Warnings) == 0 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Warnings[0], ticket.ErrMalformedOrder.Error()) {
		t.Fatalf("warning = %q", report.Warnings[0])
	}
}

func TestDispatchPayment(t *testing.T) {
	d := openTestDB(t)
	seedProfiles(t, d)
	q := NewQueue(d.Jobs(), nil, zap.NewNop())
	disp := NewDispatcher(config.ModeQueued, ticket.NewFormatter(48, "$"), NewProfileResolver(d.Profiles()), q, nil, zap.NewNop())
	ctx := context.Background()

	paymentID := int64(55)
	report := disp.DispatchPayment(ctx, PaymentEvent{
		RestaurantID: 1,
		PaymentID:    &paymentID,
		Kind:         ticket.KindReceipt,
		Order:        order(),
		Payments:     []ticket.Payment{{Method: "card", Amount: 1000}},
	})
	if len(report.Jobs) != 1 {
		t.Fatalf("report = %+v", report)
	}
	job, err := q.Get(ctx, 1, report.Jobs[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.JobType != ticket.KindReceipt || job.PaymentRef == nil || *job.PaymentRef != 55 {
		t.Fatalf("job = %+v", job)
	}
	if !strings.Contains(string(job.Content), "Tax (10%):") || !strings.Contains(string(job.Content), string(ticket.CmdDrawerPulse)) {
		t.Fatal("receipt content missing tax line or drawer pulse")
	}

	bill := disp.DispatchPayment(ctx, PaymentEvent{RestaurantID: 1, Kind: ticket.KindBill, Order: order()})
	if len(bill.Jobs) != 0 || len(bill.Warnings) != 0 {
		t.Fatalf("bill auto-print is off, report = %+v", bill)
	}

	wrong := disp.DispatchPayment(ctx, PaymentEvent{RestaurantID: 1, Kind: ticket.KindKitchen, Order: order()})
	if len(wrong.Warnings) != 1 {
		t.Fatalf("report = %+v", wrong)
	}
}

func TestDirectPrinter(t *testing.T) {
	sp := &stubSpooler{printers: []printer.Info{{Name: "Epson-TM", Status: printer.StatusError, Default: true}}}
	dp := NewDirectPrinter(printer.NewDirectory(sp, printer.Options{}))

	sel, err := dp.Print(context.Background(), "Kitchen-POS", []byte("x"))
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if sel.Name != "Epson-TM" || !sel.Fallback() || string(sp.written) != "x" {
		t.Fatalf("sel = %+v, written %q", sel, sp.written)
	}

	empty := NewDirectPrinter(printer.NewDirectory(&stubSpooler{}, printer.Options{}))
	if _, err := empty.Print(context.Background(), "", []byte("x")); !errors.Is(err, printer.ErrNoPrinterAvailable) {
		t.Fatalf("err = %v", err)
	}
}

type stubSpooler struct {
	printers []printer.Info
	written  []byte
}

func (s *stubSpooler) Printers(ctx context.Context) ([]printer.Info, error) { return s.printers, nil }
func (s *stubSpooler) Default(ctx context.Context) (string, error)          { return "", nil }
func (s *stubSpooler) Write(ctx context.Context, name string, data []byte) error {
	s.written = append(s.written, data...)
	return nil
}
