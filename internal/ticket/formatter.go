package ticket

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultWidth      = 48
	instructionIndent = 6
	timeLayout        = "2006-01-02 15:04"
)

// Formatter renders order snapshots into fixed-width ticket text. It holds no
// state beyond its settings and is safe for concurrent use.
type Formatter struct {
	Width    int
	Currency string
}

func NewFormatter(width int, currency string) *Formatter {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Formatter{Width: width, Currency: currency}
}

// Build renders in and wraps it with printer control codes.
func (f *Formatter) Build(in Input) ([]byte, error) {
	doc, err := f.Render(in)
	if err != nil {
		return nil, err
	}
	return Encode(doc, in.Kind), nil
}

func (f *Formatter) Render(in Input) (Document, error) {
	if !in.Kind.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
	if err := validateItems(in.Order.Items); err != nil {
		return Document{}, err
	}

	if station, ok := in.Kind.Station(); ok {
		items := ItemsForStation(in.Order.Items, station)
		if len(items) == 0 {
			return Document{}, fmt.Errorf("%w: no %s items", ErrNoItems, station)
		}
		return f.fitTitle(f.renderStation(in, station, items)), nil
	}

	if len(in.Order.Items) == 0 {
		return Document{}, ErrNoItems
	}
	return f.fitTitle(f.renderAccount(in)), nil
}

// fitTitle cuts the title so that, printed at TitleScale, it stays within the
// page width.
func (f *Formatter) fitTitle(doc Document) Document {
	doc.Title = strings.TrimSpace(truncate(doc.Title, f.Width/TitleScale))
	return doc
}

func validateItems(items []LineItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: item %d has no name", ErrMalformedOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrMalformedOrder, item.Name, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %q has negative price", ErrMalformedOrder, item.Name)
		}
	}
	return nil
}

// ItemsForStation keeps the items tagged for station, in order.
func ItemsForStation(items []LineItem, station Station) []LineItem {
	var out []LineItem
	for _, item := range items {
		if item.Station == station {
			out = append(out, item)
		}
	}
	return out
}

type page struct {
	width int
	b     strings.Builder
}

func (p *page) line(s string) {
	p.b.WriteString(truncate(strings.TrimRight(s, " "), p.width))
	p.b.WriteByte('\n')
}

func (p *page) lines(ls []string) {
	for _, l := range ls {
		p.line(l)
	}
}

func (p *page) labelValue(label, value string) {
	p.line(LabelValue(p.width, label, Fold(value)))
}

func (p *page) header(in Input) {
	p.labelValue("Order #:", in.Order.Number)
	if in.Order.Table != "" {
		p.labelValue("Table:", in.Order.Table)
	}
	if in.Order.Staff.Name != "" {
		p.labelValue(in.Order.Staff.Role.Label()+":", in.Order.Staff.Name)
	}
	at := in.PrintedAt
	if at.IsZero() {
		at = in.Order.PlacedAt
	}
	if !at.IsZero() {
		p.labelValue("Time:", at.Format(timeLayout))
	}
}

func stationTitle(station Station) string {
	return strings.ToUpper(string(station)) + " ORDER"
}

func (f *Formatter) renderStation(in Input, station Station, items []LineItem) Document {
	p := &page{width: f.Width}
	p.lines(Banner(f.Width, Fold(in.Restaurant)))
	p.header(in)
	p.line(Rule(f.Width, '-'))

	for _, item := range items {
		p.line(fmt.Sprintf("%dx %s", item.Quantity, Fold(item.Name)))
		if item.Instructions != "" {
			for _, l := range Wrap(Fold(item.Instructions), f.Width-instructionIndent) {
				p.line(strings.Repeat(" ", instructionIndent) + l)
			}
		}
	}

	p.line(Rule(f.Width, '-'))
	if in.Order.Notes != "" {
		p.line("Notes:")
		p.lines(Wrap(Fold(in.Order.Notes), f.Width))
	}
	p.line(fmt.Sprintf("Total Items: %d", len(items)))
	p.line(Rule(f.Width, '='))

	return Document{Title: stationTitle(station), Body: p.b.String()}
}

// Totals are the computed money lines of a receipt or bill.
type Totals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Total    int64
	Paid     int64
	Balance  int64
	Change   int64
}

func ComputeTotals(order Order, payments []Payment, taxPercent float64) Totals {
	var t Totals
	for _, item := range order.Items {
		t.Subtotal += int64(item.Quantity) * item.UnitPrice
	}

	t.Discount = order.Discount
	if t.Discount < 0 {
		t.Discount = 0
	}
	if t.Discount > t.Subtotal {
		t.Discount = t.Subtotal
	}

	taxable := t.Subtotal - t.Discount
	if taxPercent > 0 {
		t.Tax = int64(math.Round(float64(taxable) * taxPercent / 100))
	}
	t.Total = taxable + t.Tax

	for _, p := range payments {
		t.Paid += p.Amount
	}
	if t.Paid >= t.Total {
		t.Change = t.Paid - t.Total
	} else {
		t.Balance = t.Total - t.Paid
	}
	return t
}

func (f *Formatter) renderAccount(in Input) Document {
	p := &page{width: f.Width}
	money := func(v int64) string { return FormatMoney(v, f.Currency) }

	heading := "RECEIPT"
	if in.Kind == KindBill {
		heading = "BILL"
	}
	p.lines(Banner(f.Width, heading))
	p.header(in)
	p.line(Rule(f.Width, '-'))

	for _, item := range in.Order.Items {
		price := money(int64(item.Quantity) * item.UnitPrice)
		p.line(DotLeader(f.Width, item.Quantity, Fold(item.Name), price))
	}

	totals := ComputeTotals(in.Order, in.Payments, in.TaxPercent)
	p.line(Rule(f.Width, '-'))
	p.labelValue("Subtotal:", money(totals.Subtotal))
	if totals.Discount > 0 {
		p.labelValue("Discount:", money(-totals.Discount))
	}
	if in.TaxPercent > 0 {
		pct := strconv.FormatFloat(in.TaxPercent, 'f', -1, 64)
		p.labelValue("Tax ("+pct+"%):", money(totals.Tax))
	}
	p.labelValue("TOTAL:", money(totals.Total))

	if len(in.Payments) > 0 {
		p.line(Rule(f.Width, '-'))
		for _, pay := range in.Payments {
			method := pay.Method
			if method == "" {
				method = "payment"
			}
			p.labelValue("Paid ("+Fold(method)+"):", money(pay.Amount))
		}
		p.labelValue("Balance Due:", money(totals.Balance))
		if totals.Change > 0 {
			p.labelValue("Change:", money(totals.Change))
		}
	}

	p.line(Rule(f.Width, '='))
	if in.Kind == KindReceipt {
		p.line(Center(f.Width, "Thank you for dining with us!"))
	} else {
		p.line(Center(f.Width, "Please present this bill when paying"))
	}

	return Document{Title: Fold(in.Restaurant), Body: p.b.String()}
}
