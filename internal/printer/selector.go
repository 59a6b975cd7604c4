package printer

import (
	"context"
	"fmt"
)

type Reason string

const (
	ReasonRequested      Reason = "requested"
	ReasonThermalDefault Reason = "thermal_default"
	ReasonThermalMatch   Reason = "thermal_match"
	ReasonSystemDefault  Reason = "system_default"
	ReasonConfigured     Reason = "configured"
)

type Selection struct {
	Name      string `json:"name"`
	Reason    Reason `json:"reason"`
	Requested string `json:"requested,omitempty"`
}

// Fallback reports whether a requested printer was passed over.
func (s Selection) Fallback() bool {
	return s.Requested != "" && s.Reason != ReasonRequested
}

type Selector struct {
	dir *Directory
}

func NewSelector(dir *Directory) *Selector {
	return &Selector{dir: dir}
}

// Select picks the printer for a job: the requested one if it is usable,
// then a thermal system default, then the first usable thermal printer, then
// the system default. It never returns a fatally offline printer.
func (s *Selector) Select(ctx context.Context, requested string) (Selection, error) {
	printers, err := s.dir.ListPrinters(ctx)
	if err != nil {
		return Selection{}, err
	}

	usable := func(name string) bool {
		info, ok := find(printers, name)
		return ok && !s.dir.IsFatal(info.Status)
	}

	if requested != "" && usable(requested) {
		return Selection{Name: requested, Reason: ReasonRequested, Requested: requested}, nil
	}

	def, err := s.dir.DefaultPrinter(ctx)
	if err != nil {
		def = ""
	}
	if def == "" {
		for _, p := range printers {
			if p.Default {
				def = p.Name
				break
			}
		}
	}

	if def != "" && s.dir.Classify(def) && usable(def) {
		return Selection{Name: def, Reason: ReasonThermalDefault, Requested: requested}, nil
	}

	for _, p := range printers {
		if s.dir.Classify(p.Name) && !s.dir.IsFatal(p.Status) {
			return Selection{Name: p.Name, Reason: ReasonThermalMatch, Requested: requested}, nil
		}
	}

	if def != "" && usable(def) {
		return Selection{Name: def, Reason: ReasonSystemDefault, Requested: requested}, nil
	}

	if requested != "" {
		return Selection{}, fmt.Errorf("%w: %q is not usable and nothing else matched", ErrNoPrinterAvailable, requested)
	}
	return Selection{}, ErrNoPrinterAvailable
}
