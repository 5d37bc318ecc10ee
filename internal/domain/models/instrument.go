package models

// InstrumentKind selects the funds check applied by the risk validator.
type InstrumentKind string

const (
	KindStock  InstrumentKind = "STOCK"
	KindFuture InstrumentKind = "FUTURE"
)

// IsValid reports whether k is a supported kind.
func (k InstrumentKind) IsValid() bool {
	return k == KindStock || k == KindFuture
}

// Instrument describes a tradable instrument.
type Instrument struct {
	ID       string         `json:"id" yaml:"id" validate:"required"`
	Name     string         `json:"name" yaml:"name"`
	Kind     InstrumentKind `json:"kind" yaml:"kind" validate:"required,oneof=STOCK FUTURE"`
	Currency string         `json:"currency" yaml:"currency" validate:"required"`
	LotSize  int64          `json:"lot_size" yaml:"lot_size" validate:"gte=0"`
}

// Lot returns the number of units per lot, defaulting to 1.
func (i Instrument) Lot() int64 {
	if i.LotSize <= 0 {
		return 1
	}
	return i.LotSize
}

// DisplayName returns the name or the id when no name is set.
func (i Instrument) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID
}
