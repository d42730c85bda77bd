package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 2 * time.Second
)

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// request describes one HTTP call; the body is rebuilt per attempt so the
// call can be retried.
type request struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// doRetry performs the request with bounded exponential backoff, retrying
// network errors, 429 and 5xx responses, honoring Retry-After. A non-2xx
// terminal response comes back as *httpError.
func doRetry(ctx context.Context, client *http.Client, req request) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if req.body != nil {
			reader = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
		if err != nil {
			return nil, err
		}
		for key, value := range req.headers {
			httpReq.Header.Set(key, value)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			if attempt < defaultMaxRetries {
				if waitErr := sleepContext(ctx, retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < defaultMaxRetries {
			if waitErr := sleepContext(ctx, retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, &httpError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
}

func isAuthStatus(err error) bool {
	httpErr, ok := err.(*httpError)
	return ok && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden)
}

func retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > defaultMaxDelay {
			return defaultMaxDelay
		}
		return retryAfter
	}
	delay := defaultBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= defaultMaxDelay {
			return defaultMaxDelay
		}
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
