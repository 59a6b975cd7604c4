package printer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	ErrPrinterNotFound    = errors.New("printer not found")
	ErrNoPrinterAvailable = errors.New("no usable printer available")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrWriteFailed        = errors.New("printer write failed")
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusPrinting     Status = "printing"
	StatusDisabled     Status = "disabled"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
	StatusUnavailable  Status = "unavailable"
	StatusUnknown      Status = "unknown"
)

type Info struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Default bool   `json:"default"`
	Source  string `json:"source"`
}

// Spooler is one source of locally reachable printers.
type Spooler interface {
	Printers(ctx context.Context) ([]Info, error)
	// Default returns "" when the spooler has no default destination.
	Default(ctx context.Context) (string, error)
	Write(ctx context.Context, name string, data []byte) error
}

// Capabilities describes what the host offers. It is detected once at
// startup and passed to NewDirectory.
type Capabilities struct {
	NativeSpooler bool
}

func DetectCapabilities() Capabilities {
	_, err := exec.LookPath("lpstat")
	return Capabilities{NativeSpooler: err == nil}
}

var DefaultThermalKeywords = []string{
	"thermal", "pos", "receipt", "epson", "tm-", "star", "tsp", "bixolon",
	"srp", "citizen", "xprinter", "rongta", "zjiang", "sewoo", "80mm", "58mm",
	"kitchen", "bar",
}

var DefaultFatalStatuses = []string{string(StatusDisconnected), string(StatusUnavailable)}

type Directory struct {
	spooler  Spooler
	keywords []string
	fatal    map[Status]bool
}

type Options struct {
	ThermalKeywords []string
	FatalStatuses   []string
}

func NewDirectory(spooler Spooler, opts Options) *Directory {
	keywords := opts.ThermalKeywords
	if len(keywords) == 0 {
		keywords = DefaultThermalKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}

	statuses := opts.FatalStatuses
	if len(statuses) == 0 {
		statuses = DefaultFatalStatuses
	}
	fatal := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		fatal[Status(strings.ToLower(strings.TrimSpace(s)))] = true
	}

	return &Directory{spooler: spooler, keywords: lowered, fatal: fatal}
}

func (d *Directory) ListPrinters(ctx context.Context) ([]Info, error) {
	printers, err := d.spooler.Printers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	return printers, nil
}

func (d *Directory) DefaultPrinter(ctx context.Context) (string, error) {
	return d.spooler.Default(ctx)
}

func (d *Directory) Lookup(ctx context.Context, name string) (Info, error) {
	printers, err := d.ListPrinters(ctx)
	if err != nil {
		return Info{}, err
	}
	if info, ok := find(printers, name); ok {
		return info, nil
	}
	return Info{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, name)
}

// Classify reports whether name looks like a thermal receipt printer.
func (d *Directory) Classify(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsFatal reports whether status means the printer will not accept work.
func (d *Directory) IsFatal(status Status) bool {
	return d.fatal[status]
}

// IsFatallyOffline is true for printers that are missing or whose status is
// in the fatal set. Any other status, error included, counts as usable.
func (d *Directory) IsFatallyOffline(ctx context.Context, name string) bool {
	info, err := d.Lookup(ctx, name)
	if err != nil {
		return true
	}
	return d.IsFatal(info.Status)
}

func (d *Directory) Write(ctx context.Context, name string, data []byte) error {
	if err := d.spooler.Write(ctx, name, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, err)
	}
	return nil
}

func find(printers []Info, name string) (Info, bool) {
	for _, p := range printers {
		if p.Name == name {
			return p, true
		}
	}
	return Info{}, false
}
