// Provides generic adapters turning typed handler functions into
// http.Handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/maruel/rdlindex/internal/server/dto"
	"github.com/maruel/rdlindex/internal/server/handlers"
	"github.com/maruel/rdlindex/internal/server/ratelimit"
	"github.com/maruel/rdlindex/internal/server/reqctx"
)

// maxJSONBodyBytes limits JSON and form request bodies.
const maxJSONBodyBytes = 1 << 20

var (
	errUnauthorized   = errors.New("unauthorized")
	errInvalidAuthHdr = errors.New("invalid authorization header")
	errInvalidToken   = errors.New("invalid token")
)

// Wrap wraps an unauthenticated handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be decoded from JSON or a form and Out is a struct.
// Fields tagged `path:"name"` and `query:"name"` are filled from the URL.
// *In must implement dto.Validatable.
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var ok bool
		if w, ok = checkRateLimit(ctx, w, r, cfg.Limiters, ""); !ok {
			return
		}
		serveTyped(ctx, w, r, fn)
	})
}

// WrapAuth is Wrap for endpoints behind the authentication gate. The
// authenticated username is available through reqctx.User.
func WrapAuth[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), svc *handlers.Services, cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := authenticate(r, svc)
		if err != nil {
			writeError(r.Context(), w, dto.Unauthorized().Wrap(err))
			return
		}
		ctx := reqctx.WithUser(r.Context(), user)
		var ok bool
		if w, ok = checkRateLimit(ctx, w, r, cfg.Limiters, user); !ok {
			return
		}
		serveTyped(ctx, w, r.WithContext(ctx), fn)
	})
}

// WrapRaw wraps a raw http.HandlerFunc, for handlers that stream files or
// read multipart forms. When gated is set the request must be authenticated.
// maxBody limits the request body when positive.
func WrapRaw(fn http.HandlerFunc, svc *handlers.Services, cfg *Config, gated bool, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := ""
		if gated {
			var err error
			if user, err = authenticate(r, svc); err != nil {
				writeError(ctx, w, dto.Unauthorized().Wrap(err))
				return
			}
			ctx = reqctx.WithUser(ctx, user)
		}
		var ok bool
		if w, ok = checkRateLimit(ctx, w, r, cfg.Limiters, user); !ok {
			return
		}
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		fn(w, r.WithContext(ctx))
	})
}

func serveTyped[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](ctx context.Context, w http.ResponseWriter, r *http.Request, fn func(context.Context, PtrIn) (*Out, error)) {
	input := new(In)
	if !readAndDecodeBody(ctx, w, r, input) {
		return
	}
	populatePathParams(r, input)
	populateQueryParams(r, input)
	if err := PtrIn(input).Validate(); err != nil {
		handleValidationError(ctx, w, err)
		return
	}
	output, err := fn(ctx, PtrIn(input))
	writeJSONResponse(ctx, w, output, err)
}

// authenticate returns the username carried by the session cookie or the
// bearer token. It returns "" without error when no credential table exists,
// which disables authentication.
func authenticate(r *http.Request, svc *handlers.Services) (string, error) {
	if svc.Credentials == nil || !svc.Credentials.Enabled() {
		return "", nil
	}
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, t, found := strings.Cut(h, " ")
		if !found || scheme != "Bearer" || t == "" {
			return "", errInvalidAuthHdr
		}
		token = t
	} else if c, err := r.Cookie(dto.SessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		return "", errUnauthorized
	}
	user, err := svc.Tokens.Verify(token)
	if err != nil {
		return "", errInvalidToken
	}
	return user, nil
}

// checkRateLimit checks the tier matching the request and wraps the response
// writer to add rate limit headers. Returns false when the request was
// rejected and the response already written.
func checkRateLimit(ctx context.Context, w http.ResponseWriter, r *http.Request, limiters *ratelimit.Limiters, user string) (http.ResponseWriter, bool) {
	tier := limiters.Match(r.Method, r.URL.Path)
	if tier == nil {
		return w, true
	}
	id := reqctx.GetClientIP(r)
	if tier.Scope == ratelimit.ScopeUser && user != "" {
		id = user
	}
	result := tier.Limiter.Allow(ratelimit.BuildKey(tier.Scope, id, tier.Name))
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		writeError(ctx, w, dto.RateLimitExceeded(int(result.RetryAfter.Seconds())))
		return w, false
	}
	return w, true
}

// readAndDecodeBody decodes a JSON or url-encoded form body into input.
// Returns false if an error occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			writeError(ctx, w, bodyError(err))
			return false
		}
		populateFormParams(r, input)
		return true
	}

	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		writeError(ctx, w, bodyError(err))
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			writeError(ctx, w, dto.BadRequest("Invalid request body").Wrap(err))
			return false
		}
	}
	return true
}

func bodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return dto.PayloadTooLarge(maxBytesErr.Limit)
	}
	return dto.BadRequest("Failed to read request body").Wrap(err)
}

// populatePathParams fills struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	populateTagged(input, "path", r.PathValue)
}

// populateQueryParams fills struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	q := r.URL.Query()
	populateTagged(input, "query", q.Get)
}

// populateFormParams fills struct fields tagged with `form:"paramName"`.
func populateFormParams(r *http.Request, input any) {
	populateTagged(input, "form", r.PostForm.Get)
}

// populateTagged sets the fields of the struct pointed to by input whose tag
// key names a non-empty value returned by get.
func populateTagged(input any, key string, get func(string) string) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get(key)
		if tag == "" {
			continue
		}
		v := get(tag)
		if v == "" {
			continue
		}
		f := elem.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				f.SetInt(int64(n))
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(v); err == nil {
				f.SetBool(b)
			}
		default:
			if f.CanAddr() {
				if u, ok := f.Addr().Interface().(encoding.TextUnmarshaler); ok {
					_ = u.UnmarshalText([]byte(v))
				}
			}
		}
	}
}

// handleValidationError writes a validation error; errors without a status
// become 400 VALIDATION_FAILED.
func handleValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	var ews dto.ErrorWithStatus
	if !errors.As(err, &ews) {
		err = dto.BadRequest(err.Error())
	}
	writeError(ctx, w, err)
}

// writeJSONResponse writes a JSON response or error response. Outputs
// implementing dto.CookieSetter also set their cookie.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if cs, ok := any(output).(dto.CookieSetter); ok {
		http.SetCookie(w, cs.Cookie())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError writes err as a JSON error response, mapping domain errors to
// their API error first.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	err = handlers.ToAPIError(err)
	statusCode := http.StatusInternalServerError
	code := dto.ErrorCodeInternal
	message := err.Error()
	var details map[string]any
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode = ews.StatusCode()
		code = ews.Code()
		details = ews.Details()
	}
	var apiErr *dto.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message()
	}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", code)
	} else {
		slog.WarnContext(ctx, "Request rejected", "err", err, "statusCode", statusCode, "code", code)
	}
	if len(details) == 0 {
		details = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := dto.ErrorResponse{Error: dto.ErrorDetails{Code: code, Message: message}, Details: details}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "Failed to encode error response", "err", err)
	}
}
