package dto

// --- Dataset ---

// SearchRequest is a request to search the dataset.
type SearchRequest struct {
	Query string `query:"query"`
}

// Validate is a no-op; an empty query yields no results.
func (r *SearchRequest) Validate() error {
	return nil
}

// HistoryRequest is a request to list past ingestions.
type HistoryRequest struct {
	Limit int `query:"limit"`
}

// Validate validates the history request fields.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return BadRequest("limit must be non-negative").WithDetail("field", "limit")
	}
	return nil
}

// --- Auth ---

// LoginRequest is a request to log in. It is accepted as JSON or as a
// url-encoded form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate validates the login request fields.
func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return MissingField("username")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	return nil
}

// LogoutRequest is a request to clear the session.
type LogoutRequest struct{}

// Validate is a no-op for LogoutRequest.
func (r *LogoutRequest) Validate() error {
	return nil
}

// --- Health ---

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}
