package dto

import (
	"net/http"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SessionCookie is the name of the cookie holding the session token.
const SessionCookie = "session"

// CookieSetter is implemented by responses that set a cookie.
type CookieSetter interface {
	Cookie() *http.Cookie
}

// OkResponse is a simple success response.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// --- Dataset ---

// UploadResponse is a response from a successful upload.
type UploadResponse struct {
	Message      string `json:"message"`
	RowsAppended int    `json:"rows_appended"`
	Bootstrap    bool   `json:"bootstrap"`
	TotalRows    int    `json:"total_rows"`
}

// SearchResponse lists matching rows, keyed by column name in column order.
type SearchResponse struct {
	Results []*orderedmap.OrderedMap[string, any] `json:"results"`
	// Truncated is set when results were capped by the server quota.
	Truncated bool `json:"truncated,omitempty"`
}

// Ingestion describes one past upload.
type Ingestion struct {
	ID           string `json:"id"`
	Time         string `json:"time"`
	User         string `json:"user,omitempty"`
	Filename     string `json:"filename"`
	RowsAppended int    `json:"rows_appended"`
	Bootstrap    bool   `json:"bootstrap,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Commit describes one revision of the dataset.
type Commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// HistoryResponse lists past ingestions and dataset revisions, newest first.
type HistoryResponse struct {
	Ingestions []Ingestion `json:"ingestions"`
	Commits    []Commit    `json:"commits,omitempty"`
}

// --- Auth ---

// LoginResponse is a response from logging in.
type LoginResponse struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Secure    bool      `json:"-"`
}

// Cookie implements CookieSetter.
func (r *LoginResponse) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    r.Token,
		Path:     "/",
		Expires:  r.ExpiresAt,
		HttpOnly: true,
		Secure:   r.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// LogoutResponse is a response from logging out.
type LogoutResponse struct {
	OkResponse
}

// Cookie implements CookieSetter by expiring the session cookie.
func (r *LogoutResponse) Cookie() *http.Cookie {
	return &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
}

// --- Health ---

// HealthResponse reports server health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Rows    int    `json:"rows"`
}
