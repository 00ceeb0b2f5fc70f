package tee

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ResponseSaver is a wrapper around http.ResponseWriter that records the status
// code and size of the response, and optionally keeps a copy of the body.
type ResponseSaver struct {
	rw           http.ResponseWriter
	b            *bytes.Buffer
	status       int
	written      int
	wroteHeaders bool
	CreatedAt    time.Time
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.written += n
	if t.b != nil {
		t.b.Write(b[:n])
	}
	return n, err
}

// Body returns the saved response body, or nil if the body is not kept.
func (t *ResponseSaver) Body() []byte {
	if t.b == nil {
		return nil
	}
	return t.b.Bytes()
}

// StatusCode returns the status code of the response.
func (t *ResponseSaver) StatusCode() int {
	if !t.wroteHeaders {
		return http.StatusOK
	}
	return t.status
}

// BytesWritten returns the number of body bytes written to the client.
func (t *ResponseSaver) BytesWritten() int {
	return t.written
}

// NewResponseSaver returns a new ResponseSaver writing through to w.
// If keepBody is set, a copy of the body is kept as well.
func NewResponseSaver(w http.ResponseWriter, keepBody bool) *ResponseSaver {
	rs := &ResponseSaver{
		CreatedAt: time.Now(),
		rw:        w,
	}
	if keepBody {
		rs.b = &bytes.Buffer{}
	}
	return rs
}

// RequestLogger logs every request served by next at debug level.
// Failed requests are logged at warn level with the response body.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rs := NewResponseSaver(w, true)
			next.ServeHTTP(rs, r)

			event := logger.Debug()
			if rs.StatusCode() >= http.StatusBadRequest {
				event = logger.Warn().Bytes("body", rs.Body())
			}
			event.
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("sourceIp", getRequestSourceIp(r)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", rs.StatusCode()).
				Int("bytes", rs.BytesWritten()).
				Dur("duration", time.Since(rs.CreatedAt)).
				Msg("Sending response to client")
		})
	}
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
