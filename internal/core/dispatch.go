package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/ticket"
)

// Printer prints rendered content on this host, choosing the device itself.
type Printer interface {
	Print(ctx context.Context, requested string, data []byte) (printer.Selection, error)
}

type DirectPrinter struct {
	selector  *printer.Selector
	directory *printer.Directory
}

func NewDirectPrinter(dir *printer.Directory) *DirectPrinter {
	return &DirectPrinter{selector: printer.NewSelector(dir), directory: dir}
}

func (p *DirectPrinter) Print(ctx context.Context, requested string, data []byte) (printer.Selection, error) {
	sel, err := p.selector.Select(ctx, requested)
	if err != nil {
		return sel, err
	}
	return sel, p.directory.Write(ctx, sel.Name, data)
}

type OrderEvent struct {
	RestaurantID   int64        `json:"restaurant_id" binding:"required,gt=0"`
	RestaurantName string       `json:"restaurant_name"`
	OrderID        *int64       `json:"order_id"`
	Order          ticket.Order `json:"order"`
}

type PaymentEvent struct {
	RestaurantID   int64            `json:"restaurant_id" binding:"required,gt=0"`
	RestaurantName string           `json:"restaurant_name"`
	OrderID        *int64           `json:"order_id"`
	PaymentID      *int64           `json:"payment_id"`
	Kind           ticket.Kind      `json:"kind" binding:"required,oneof=receipt bill"`
	Order          ticket.Order     `json:"order"`
	Payments       []ticket.Payment `json:"payments"`
}

type PrintedTicket struct {
	Kind    ticket.Kind    `json:"kind"`
	Printer string         `json:"printer"`
	Reason  printer.Reason `json:"reason"`
}

// Report describes what a dispatch did. Failures end up in Warnings; a
// dispatch never fails the order it was triggered by.
type Report struct {
	Mode     string          `json:"mode"`
	Jobs     []string        `json:"jobs"`
	Printed  []PrintedTicket `json:"printed"`
	Warnings []string        `json:"warnings"`
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type Dispatcher struct {
	mode      string
	formatter *ticket.Formatter
	profiles  *ProfileResolver
	queue     *Queue
	printer   Printer
	log       *zap.Logger
	now       func() time.Time
}

func NewDispatcher(mode string, f *ticket.Formatter, profiles *ProfileResolver, queue *Queue, p Printer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		mode:      mode,
		formatter: f,
		profiles:  profiles,
		queue:     queue,
		printer:   p,
		log:       log,
		now:       time.Now,
	}
}

type delivery struct {
	restaurantID int64
	kind         ticket.Kind
	printerName  string
	orderRef     *int64
	paymentRef   *int64
	restaurant   string
	orderNumber  string
}

// DispatchOrder prints or queues one station ticket per station present in
// the order whose auto-print flag is on.
func (d *Dispatcher) DispatchOrder(ctx context.Context, ev OrderEvent) *Report {
	report := &Report{Mode: d.mode, Jobs: []string{}, Printed: []PrintedTicket{}, Warnings: []string{}}

	profile, err := d.profiles.Resolve(ctx, ev.RestaurantID)
	if err != nil {
		d.log.Error("failed to resolve print profile", zap.Int64("restaurant_id", ev.RestaurantID), zap.Error(err))
		report.warn("print profile unavailable: %v", err)
		return report
	}
	name := ev.RestaurantName
	if name == "" {
		name = profile.RestaurantName
	}

	present := make(map[ticket.Station]bool)
	for _, item := range ev.Order.Items {
		present[item.Station] = true
	}

	for _, station := range ticket.Stations {
		kind, _ := station.Kind()
		if !present[station] || !profile.Enabled(kind) {
			continue
		}
		in := ticket.Input{
			Kind:       kind,
			Restaurant: name,
			Order:      ev.Order,
			PrintedAt:  d.now(),
		}
		d.deliver(ctx, report, in, delivery{
			restaurantID: ev.RestaurantID,
			kind:         kind,
			printerName:  profile.PrinterFor(kind),
			orderRef:     ev.OrderID,
			restaurant:   name,
			orderNumber:  ev.Order.Number,
		})
	}
	return report
}

// DispatchPayment prints or queues a receipt or a bill for the order,
// including any payments made so far.
func (d *Dispatcher) DispatchPayment(ctx context.Context, ev PaymentEvent) *Report {
	report := &Report{Mode: d.mode, Jobs: []string{}, Printed: []PrintedTicket{}, Warnings: []string{}}

	if ev.Kind != ticket.KindReceipt && ev.Kind != ticket.KindBill {
		report.warn("unsupported payment ticket kind %q", ev.Kind)
		return report
	}

	profile, err := d.profiles.Resolve(ctx, ev.RestaurantID)
	if err != nil {
		d.log.Error("failed to resolve print profile", zap.Int64("restaurant_id", ev.RestaurantID), zap.Error(err))
		report.warn("print profile unavailable: %v", err)
		return report
	}
	if !profile.Enabled(ev.Kind) {
		return report
	}
	name := ev.RestaurantName
	if name == "" {
		name = profile.RestaurantName
	}

	in := ticket.Input{
		Kind:       ev.Kind,
		Restaurant: name,
		Order:      ev.Order,
		Payments:   ev.Payments,
		TaxPercent: profile.TaxPercent,
		PrintedAt:  d.now(),
	}
	d.deliver(ctx, report, in, delivery{
		restaurantID: ev.RestaurantID,
		kind:         ev.Kind,
		printerName:  profile.PrinterFor(ev.Kind),
		orderRef:     ev.OrderID,
		paymentRef:   ev.PaymentID,
		restaurant:   name,
		orderNumber:  ev.Order.Number,
	})
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, report *Report, in ticket.Input, dv delivery) {
	log := d.log.With(
		zap.Int64("restaurant_id", dv.restaurantID),
		zap.String("job_type", string(dv.kind)),
		zap.String("order_number", dv.orderNumber))

	content, err := d.formatter.Build(in)
	if err != nil {
		log.Warn("failed to render ticket", zap.Error(err))
		report.warn("%s: render failed: %v", dv.kind, err)
		return
	}

	if d.mode == config.ModeDirect {
		if d.printer == nil {
			report.warn("%s: no local printer configured", dv.kind)
			return
		}
		sel, err := d.printer.Print(ctx, dv.printerName, content)
		if err != nil {
			log.Warn("direct print failed", zap.String("printer", sel.Name), zap.Error(err))
			report.warn("%s: print failed: %v", dv.kind, err)
			return
		}
		if sel.Fallback() {
			log.Warn("printed on fallback printer",
				zap.String("requested", sel.Requested),
				zap.String("printer", sel.Name),
				zap.String("reason", string(sel.Reason)))
		}
		report.Printed = append(report.Printed, PrintedTicket{Kind: dv.kind, Printer: sel.Name, Reason: sel.Reason})
		return
	}

	id, err := d.queue.Enqueue(ctx, EnqueueRequest{
		RestaurantID:   dv.restaurantID,
		JobType:        dv.kind,
		Content:        content,
		PrinterName:    dv.printerName,
		OrderRef:       dv.orderRef,
		PaymentRef:     dv.paymentRef,
		RestaurantName: dv.restaurant,
		OrderNumber:    dv.orderNumber,
	})
	if err != nil {
		log.Error("failed to enqueue print job", zap.Error(err))
		report.warn("%s: enqueue failed: %v", dv.kind, err)
		return
	}
	report.Jobs = append(report.Jobs, id)
}
