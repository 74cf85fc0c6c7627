package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OK                     int = 200
	BAD_REQUEST            int = 400
	UNAUTHORIZED           int = 401
	FORBIDDEN              int = 403
	DATA_NOT_FOUND         int = 404
	METHOD_NOT_ALLOWED     int = 405
	UNSUPPORTED_MEDIA_TYPE int = 415
	RATE_LIMIT_EXCEEDED    int = 429
	INTERNAL_SERVER_ERROR  int = 500
	BAD_GATEWAY            int = 502
	SERVICE_UNAVAILABLE    int = 503
	GATEWAY_TIMEOUT        int = 504
)

var messages = map[int]string{
	OK:                     "OK",
	BAD_REQUEST:            "Bad request",
	UNAUTHORIZED:           "Unauthorized",
	FORBIDDEN:              "Forbidden",
	DATA_NOT_FOUND:         "Data not found",
	METHOD_NOT_ALLOWED:     "Method not allowed",
	UNSUPPORTED_MEDIA_TYPE: "Unsupported media type",
	RATE_LIMIT_EXCEEDED:    "Rate limit exceeded",
	INTERNAL_SERVER_ERROR:  "Internal server error",
	BAD_GATEWAY:            "Bad gateway",
	SERVICE_UNAVAILABLE:    "Service unavailable",
	GATEWAY_TIMEOUT:        "Gateway timeout",
}

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrNotFound      = errors.New("not found")
	ErrRequestFailed = errors.New("request failed")
)

const requestTimeout = 20 * time.Second

type Proxy struct {
	header      map[string]string
	client      *http.Client
	rateLimiter *RateLimiter
}

func NewProxy(header map[string]string, restrictions []Restriction) *Proxy {
	return &Proxy{
		header:      header,
		client:      &http.Client{Timeout: requestTimeout},
		rateLimiter: NewRateLimiter(restrictions),
	}
}

// Number of vital requests waiting for the rate limiter
func (proxy *Proxy) Pending() int {
	return proxy.rateLimiter.Pending()
}

// Post the provided body to the url, indicating if it is vital.
// The request is performed depending on the status of the rate limiter.
// On client errors the body is returned along with the error, since APIs
// usually explain what went wrong in it
func (proxy *Proxy) Post(ctx context.Context, url string, body []byte, vital bool) ([]byte, error) {

	// Ask for permission to execute the request and wait if necessary
	if !proxy.rateLimiter.Allowed(ctx, vital) {
		return nil, ErrRateLimited
	}

	// Create the request and add the header
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request for url %s: %w", url, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range proxy.header {
		request.Header.Set(key, value)
	}

	// Perform the request
	res, err := proxy.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer res.Body.Close()

	// Check if the status of the request is understood
	message, ok := messages[res.StatusCode]
	if !ok {
		log.Error().Msg(fmt.Sprintf("Status code of request (%d) is not understood", res.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, res.StatusCode)
	}
	log.Debug().Msg(fmt.Sprintf("%d %s", res.StatusCode, message))

	stream, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	switch res.StatusCode {
	case OK:
		return stream, nil
	case DATA_NOT_FOUND:
		return stream, ErrNotFound
	case RATE_LIMIT_EXCEEDED:
		proxy.rateLimiter.ReceivedRateLimit(retryAfter(res.Header))
		return nil, ErrRateLimited
	case BAD_REQUEST:
		return stream, fmt.Errorf("%w: %s", ErrRequestFailed, message)
	default:
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, message)
	}
}

func retryAfter(header http.Header) time.Duration {
	seconds, err := strconv.Atoi(header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
