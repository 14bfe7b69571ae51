package domain

// Overview — сводка для главного экрана консоли оператора.
type Overview struct {
	Policies struct {
		Total   int64 `json:"total"`
		Enabled int64 `json:"enabled"`
	} `json:"policies"`

	Approvals struct {
		Pending int64 `json:"pending"`
	} `json:"approvals"`

	// Срез по следу решений за последний час
	Decisions struct {
		Total        int64   `json:"total"`
		Blocked      int64   `json:"blocked"`
		P95LatencyMs float64 `json:"p95_latency_ms"`
	} `json:"decisions"`
}
