package core

import (
	"context"
	"errors"

	"github.com/orrn/printdispatch/internal/db"
	"github.com/orrn/printdispatch/internal/ticket"
)

type ProfileStore interface {
	GetRestaurant(ctx context.Context, id int64) (*db.Restaurant, error)
	GetProfile(ctx context.Context, restaurantID int64) (*db.PrintProfile, error)
}

// PrintProfile is a restaurant's auto-print configuration after branch to
// parent resolution. An empty printer name leaves the choice to the selector.
type PrintProfile struct {
	RestaurantName string
	// SourceID is the restaurant the settings came from, 0 for none.
	SourceID   int64
	AutoPrint  map[ticket.Kind]bool
	Printers   map[ticket.Kind]string
	TaxPercent float64
}

func (p *PrintProfile) Enabled(kind ticket.Kind) bool {
	return p.AutoPrint[kind]
}

func (p *PrintProfile) PrinterFor(kind ticket.Kind) string {
	return p.Printers[kind]
}

func profileFromRow(r *db.PrintProfile) *PrintProfile {
	return &PrintProfile{
		SourceID: r.RestaurantID,
		AutoPrint: map[ticket.Kind]bool{
			ticket.KindKitchen: r.AutoPrintKitchen,
			ticket.KindBar:     r.AutoPrintBar,
			ticket.KindBuffet:  r.AutoPrintBuffet,
			ticket.KindService: r.AutoPrintService,
			ticket.KindReceipt: r.AutoPrintReceipt,
			ticket.KindBill:    r.AutoPrintBill,
		},
		Printers: map[ticket.Kind]string{
			ticket.KindKitchen: r.KitchenPrinterName,
			ticket.KindBar:     r.BarPrinterName,
			ticket.KindBuffet:  r.BuffetPrinterName,
			ticket.KindService: r.ServicePrinterName,
			ticket.KindReceipt: r.ReceiptPrinterName,
			ticket.KindBill:    r.BillPrinterName,
		},
		TaxPercent: r.TaxPercent,
	}
}

type ProfileResolver struct {
	store ProfileStore
}

func NewProfileResolver(store ProfileStore) *ProfileResolver {
	return &ProfileResolver{store: store}
}

// Resolve returns the branch's own profile, else its parent's, else an empty
// profile under which nothing prints automatically.
func (r *ProfileResolver) Resolve(ctx context.Context, restaurantID int64) (*PrintProfile, error) {
	var name string
	var parentID int64
	restaurant, err := r.store.GetRestaurant(ctx, restaurantID)
	switch {
	case err == nil:
		name = restaurant.Name
		if restaurant.ParentID.Valid {
			parentID = restaurant.ParentID.Int64
		}
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	for _, id := range []int64{restaurantID, parentID} {
		if id == 0 {
			continue
		}
		row, err := r.store.GetProfile(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p := profileFromRow(row)
		p.RestaurantName = name
		return p, nil
	}

	return &PrintProfile{
		RestaurantName: name,
		AutoPrint:      map[ticket.Kind]bool{},
		Printers:       map[ticket.Kind]string{},
	}, nil
}
