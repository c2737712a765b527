package models

// Requests for the feed HTTP endpoints. Defined in domain for consistency and reuse.

type SignalsRequest struct {
	Kind  string `query:"kind" json:"kind" default:"trade" validate:"oneof=trade system all"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=100"`
}

type TradesRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=20"`
}

type AlertsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Since  string `query:"since" json:"since"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type SoundToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
