package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LeadMetrics is returned by GET /v1/metrics/leads.
type LeadMetrics struct {
	Claims          int64            `json:"claims"`
	ProgressUpdates int64            `json:"progressUpdates"`
	ContactsLogged  int64            `json:"contactsLogged"`
	LeadsCreated    int64            `json:"leadsCreated"`
	Rejections      map[string]int64 `json:"rejections"`
	ConflictRetries int64            `json:"conflictRetries"`
	CacheHitRate    float64          `json:"cacheHitRate"`
	EventsPublished int64            `json:"eventsPublished"`
	EventsFailed    int64            `json:"eventsFailed"`
	Period          string           `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data    []T  `json:"data"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// TokenResponse is returned by POST /v1/auth/token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
	PrincipalID int64  `json:"principalId"`
	Role        Role   `json:"role"`
}

// PermissionsResponse is returned by the permission endpoints.
type PermissionsResponse struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}
