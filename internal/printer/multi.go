package printer

import (
	"context"
	"errors"

	"github.com/orrn/printdispatch/internal/config"
)

// MultiSpooler merges several spoolers. A name is owned by the first spooler
// that lists it, and the first spooler reporting a default wins.
//
// Spoolers with a static printer list implement owner so that Write can route
// without asking every printer for its status.
type MultiSpooler struct {
	spoolers []Spooler
}

type owner interface {
	Owns(name string) bool
}

func NewMultiSpooler(spoolers ...Spooler) *MultiSpooler {
	return &MultiSpooler{spoolers: spoolers}
}

// NewSpooler assembles the spooler for this host: the native print system
// when present, plus any configured network printers.
func NewSpooler(caps Capabilities, cfg config.PrintersConfig) *MultiSpooler {
	var spoolers []Spooler
	if caps.NativeSpooler {
		spoolers = append(spoolers, NewCUPSSpooler(nil))
	}
	if len(cfg.Network) > 0 {
		spoolers = append(spoolers, NewNetworkSpooler(cfg))
	}
	return NewMultiSpooler(spoolers...)
}

func (m *MultiSpooler) Printers(ctx context.Context) ([]Info, error) {
	var all []Info
	seen := make(map[string]bool)
	var errs []error
	for _, s := range m.spoolers {
		printers, err := s.Printers(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, p := range printers {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			all = append(all, p)
		}
	}
	if len(all) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (m *MultiSpooler) Default(ctx context.Context) (string, error) {
	for _, s := range m.spoolers {
		name, err := s.Default(ctx)
		if err == nil && name != "" {
			return name, nil
		}
	}
	return "", nil
}

func (m *MultiSpooler) Write(ctx context.Context, name string, data []byte) error {
	for _, s := range m.spoolers {
		if o, ok := s.(owner); ok {
			if o.Owns(name) {
				return s.Write(ctx, name, data)
			}
			continue
		}
		printers, err := s.Printers(ctx)
		if err != nil {
			continue
		}
		if _, ok := find(printers, name); ok {
			return s.Write(ctx, name, data)
		}
	}
	return ErrPrinterNotFound
}

func (m *MultiSpooler) Close() error {
	var errs []error
	for _, s := range m.spoolers {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
