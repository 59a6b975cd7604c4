package ticket

import (
	"errors"
	"time"
)

var (
	ErrUnknownKind    = errors.New("unknown ticket kind")
	ErrMalformedOrder = errors.New("malformed order data")
	ErrNoItems        = errors.New("no line items for ticket")
)

type Kind string

const (
	KindKitchen Kind = "kitchen_ticket"
	KindBar     Kind = "bar_ticket"
	KindBuffet  Kind = "buffet_ticket"
	KindService Kind = "service_ticket"
	KindReceipt Kind = "receipt"
	KindBill    Kind = "bill"
)

// Kinds lists every ticket kind in a stable order.
var Kinds = []Kind{KindKitchen, KindBar, KindBuffet, KindService, KindReceipt, KindBill}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Station returns the preparation station a station ticket is filtered by.
// Receipts and bills have no station.
func (k Kind) Station() (Station, bool) {
	switch k {
	case KindKitchen:
		return StationKitchen, true
	case KindBar:
		return StationBar, true
	case KindBuffet:
		return StationBuffet, true
	case KindService:
		return StationService, true
	}
	return "", false
}

type Station string

const (
	StationKitchen Station = "kitchen"
	StationBar     Station = "bar"
	StationBuffet  Station = "buffet"
	StationService Station = "service"
)

// Stations lists the preparation stations in dispatch order.
var Stations = []Station{StationKitchen, StationBar, StationBuffet, StationService}

// Kind returns the station ticket kind printed for s.
func (s Station) Kind() (Kind, bool) {
	switch s {
	case StationKitchen:
		return KindKitchen, true
	case StationBar:
		return KindBar, true
	case StationBuffet:
		return KindBuffet, true
	case StationService:
		return KindService, true
	}
	return "", false
}

// StaffRole is resolved by the caller once; the formatter only prints its label.
type StaffRole string

const (
	RoleWaiter  StaffRole = "waiter"
	RoleCashier StaffRole = "cashier"
	RoleManager StaffRole = "manager"
	RoleOwner   StaffRole = "owner"
)

func (r StaffRole) Label() string {
	switch r {
	case RoleWaiter:
		return "Waiter"
	case RoleCashier:
		return "Cashier"
	case RoleManager:
		return "Manager"
	case RoleOwner:
		return "Owner"
	}
	return "Staff"
}

type Staff struct {
	Role StaffRole `json:"role"`
	Name string    `json:"name"`
}

// LineItem prices are in minor currency units.
type LineItem struct {
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	Station      Station `json:"station"`
	UnitPrice    int64   `json:"unit_price"`
	Instructions string  `json:"instructions,omitempty"`
}

type Order struct {
	Number   string     `json:"number"`
	Table    string     `json:"table,omitempty"`
	Staff    Staff      `json:"staff"`
	PlacedAt time.Time  `json:"placed_at"`
	Items    []LineItem `json:"items"`
	Discount int64      `json:"discount,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

type Payment struct {
	Method string    `json:"method"`
	Amount int64     `json:"amount"`
	PaidAt time.Time `json:"paid_at"`
}

// Input is everything a ticket is rendered from. Timestamps are inputs so
// rendering never reads the clock.
type Input struct {
	Kind       Kind
	Restaurant string
	Order      Order
	Payments   []Payment
	TaxPercent float64
	PrintedAt  time.Time
}

// Document is the first-pass output: plain fixed-width text plus the title
// the encoder prints in large type.
type Document struct {
	Title string
	Body  string
}
