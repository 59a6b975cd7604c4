package db

import (
	"database/sql"
	"time"
)

type PrintJob struct {
	Seq             int64
	ID              string
	RestaurantID    int64
	JobType         string
	Status          string
	Content         []byte
	PrinterName     string
	OrderRef        sql.NullInt64
	PaymentRef      sql.NullInt64
	RestaurantName  string
	OrderNumber     string
	CreatedAt       time.Time
	ClaimedAt       sql.NullTime
	PrintedAt       sql.NullTime
	ErrorMessage    string
	RetryCount      int
	PrintedByClient string
}

type Restaurant struct {
	ID       int64
	Name     string
	ParentID sql.NullInt64
}

type PrintProfile struct {
	RestaurantID       int64
	AutoPrintKitchen   bool
	AutoPrintBar       bool
	AutoPrintBuffet    bool
	AutoPrintService   bool
	AutoPrintReceipt   bool
	AutoPrintBill      bool
	KitchenPrinterName string
	BarPrinterName     string
	BuffetPrinterName  string
	ServicePrinterName string
	ReceiptPrinterName string
	BillPrinterName    string
	TaxPercent         float64
}
