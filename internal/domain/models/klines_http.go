package models

// Requests for the kline snapshot HTTP endpoints.

type KlineRequest struct {
	Window string `param:"window" validate:"required,max=16"`
}

type KlinesQuery struct {
	// Windows is an optional comma-separated label filter, e.g. "1m,1h".
	Windows string `query:"windows" validate:"max=256"`
}

// Health is the /healthz body.
type Health struct {
	Status  string   `json:"status"`
	Source  string   `json:"source"`
	Bus     string   `json:"bus"`
	Topic   string   `json:"topic"`
	Windows []string `json:"windows"`
}
