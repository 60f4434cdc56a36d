package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz and GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// ChatMetrics is returned by GET /v1/metrics/chat.
type ChatMetrics struct {
	TotalRequests       int64            `json:"totalRequests"`
	ErrorRate           float64          `json:"errorRate"`
	TimeoutRate         float64          `json:"timeoutRate"`
	RateLimited         int64            `json:"rateLimited"`
	AvgTokensPerRequest float64          `json:"avgTokensPerRequest"`
	EstimatedCostUsd    float64          `json:"estimatedCostUsd"`
	CacheHitRate        float64          `json:"cacheHitRate"`
	Intents             map[string]int64 `json:"intents"`
	CallPollExits       map[string]int64 `json:"callPollExits"`
	Period              string           `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
