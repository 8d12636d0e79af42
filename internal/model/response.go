package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type MTTRResponse struct {
	Status string      `json:"status"`
	Data   MTTRMetrics `json:"data"`
}

type TrendsResponse struct {
	Status string             `json:"status"`
	Data   []DailyReliability `json:"data"`
}

type SLAResponse struct {
	Status string        `json:"status"`
	Data   SLACompliance `json:"data"`
}

type PredictionResponse struct {
	Status string            `json:"status"`
	Data   *PredictionResult `json:"data"`
}

type BreakerListResponse struct {
	Status string            `json:"status"`
	Data   []BreakerSnapshot `json:"data"`
}
