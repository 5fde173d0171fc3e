package models

import "github.com/shopspring/decimal"

// Identifier names one product within one source.
type Identifier struct {
	Source string `yaml:"source" json:"source" validate:"required"`
	ID     string `yaml:"id" json:"id" validate:"required"`
}

// WatchlistEntry is one user rule. Identifiers keep their configured order so
// logs read in the same order as the config file.
type WatchlistEntry struct {
	Name        string           `yaml:"name" json:"name"`
	Identifiers []Identifier     `yaml:"identifiers" json:"identifiers" validate:"required,min=1,unique=Source,dive"`
	MaxPrice    *decimal.Decimal `yaml:"max_price" json:"max_price,omitempty" validate:"omitempty,gte=0"`
	Channel     string           `yaml:"channel" json:"channel"`
}
