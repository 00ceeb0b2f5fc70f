package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/always-cache/querycache/pkg/schema"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	// Base URL of the remote API, e.g. https://jsonplaceholder.typicode.com.
	// Resources given as absolute URLs do not use it.
	BaseURL string
	// Per-request timeout. Zero means no timeout besides the context.
	// It is applied through the request context, so HTTPClient is left as is.
	Timeout time.Duration
	// HTTP client to send requests with. A default client is used if nil.
	HTTPClient *http.Client
	// Extra headers sent with every request.
	Header http.Header
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Fetcher performs validated GET requests against a remote JSON API.
// It never retries: every call to Fetch sends exactly one request.
type Fetcher struct {
	client  *resty.Client
	baseURL string
	timeout time.Duration
	log     zerolog.Logger
}

func New(config Config) *Fetcher {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "fetcher").Logger()

	var client *resty.Client
	if config.HTTPClient != nil {
		client = resty.NewWithClient(config.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetRetryCount(0).
		SetLogger(restyLogger{logger}).
		SetHeader("Accept", "application/json")
	for name, values := range config.Header {
		for _, value := range values {
			client.Header.Add(name, value)
		}
	}

	return &Fetcher{
		client:  client,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		timeout: config.Timeout,
		log:     logger,
	}
}

// URL resolves a resource name against the base URL.
func (f *Fetcher) URL(resource string) string {
	if u, err := url.Parse(resource); err == nil && u.IsAbs() {
		return resource
	}
	return f.baseURL + "/" + strings.TrimLeft(resource, "/")
}

// Fetch requests the resource, decodes the body as JSON and validates it.
// The returned value is the normalized value produced by the schema.
// All failures are returned as *TransportError, *HTTPStatusError,
// *DecodeError or *ValidationError.
func (f *Fetcher) Fetch(ctx context.Context, resource string, s schema.Schema) (any, error) {
	uri := f.URL(resource)
	requestID := uuid.NewString()
	log := f.log.With().Str("url", uri).Str("request_id", requestID).Logger()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	log.Debug().Msg("Requesting resource")
	started := time.Now()
	res, err := f.client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", requestID).
		Get(uri)
	if err != nil {
		log.Warn().Err(err).Msg("Could not reach remote")
		return nil, &TransportError{URL: uri, Err: err}
	}
	log.Trace().
		Int("status", res.StatusCode()).
		Dur("duration", time.Since(started)).
		Int("bytes", len(res.Body())).
		Msg("Got response")

	if !res.IsSuccess() {
		return nil, &HTTPStatusError{URL: uri, StatusCode: res.StatusCode(), Status: res.Status()}
	}

	raw, err := decodeBody(res.Body())
	if err != nil {
		log.Warn().Err(err).Msg("Could not decode response body")
		return nil, &DecodeError{URL: uri, Err: err}
	}

	valid, err := s.Validate(raw)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			log.Warn().Str("path", verr.Path).Msg("Response does not match schema")
			return nil, &ValidationError{URL: uri, ValidationError: verr}
		}
		return nil, err
	}
	return valid, nil
}

// Get fetches the resource and decodes the validated value into T.
func Get[T any](ctx context.Context, f *Fetcher, resource string, s schema.Schema) (T, error) {
	var out T
	valid, err := f.Fetch(ctx, resource, s)
	if err != nil {
		return out, err
	}
	// valid already satisfies s, so Decode only converts
	return schema.Decode[T](s, valid)
}

// decodeBody decodes exactly one JSON document, keeping numbers exact.
func decodeBody(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("Empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("Unexpected data after JSON document")
	}
	return raw, nil
}

// restyLogger routes resty's internal logging through zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Trace().Msgf(format, v...)
}
