package models

// Requests for the operator HTTP endpoints.

type SignalsRequest struct {
	Instrument string `query:"instrument" json:"instrument"`
	Limit      int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type BarsRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	N          int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=5000"`
}

type StrategyToggleRequest struct {
	Name    string `param:"name" json:"-" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type HistoryRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	Days       int    `query:"days" json:"days" default:"1" validate:"gte=1,lte=30"`
	TF         string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
}
