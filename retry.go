package tsodbc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	MaxRetryAttempts = 10
	MaxRetryDelay    = 30 * time.Second

	firstRetryDelay = time.Second
)

var errRetriesExhausted = errors.New("max retries exceeded")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsodbc_client_requests_total",
		Help: "HTTP requests sent to the query service by status code",
	}, []string{"path", "code"})
	requestRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsodbc_client_request_retries_total",
		Help: "HTTP requests retried after a network error or 503",
	})
)

// Do sends req and decodes a 200 reply into v. Network failures and 503
// replies are retried with doubling delays; any other status comes back as
// an *ErrorResponse alongside the response.
func (s *Session) Do(ctx context.Context, req *http.Request, v any) (*http.Response, error) {
	req = req.WithContext(ctx)
	if err := replayable(req); err != nil {
		return nil, err
	}

	c := s.client
	b := backoff{delay: firstRetryDelay, left: MaxRetryAttempts}
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if !transient(err) {
				return nil, err
			}
			log.Debug().Err(err).Str("path", req.URL.Path).Msg("query service unreachable")
		} else {
			requestsTotal.WithLabelValues(req.URL.Path, strconv.Itoa(resp.StatusCode)).Inc()
			switch resp.StatusCode {
			case http.StatusOK:
				return resp, decodeBody(resp, v)
			case http.StatusServiceUnavailable:
				if cerr := resp.Body.Close(); cerr != nil {
					log.Debug().Err(cerr).Msg("failed to close response body")
				}
			default:
				return resp, NewErrorResponse(resp)
			}
		}

		if err := b.pause(ctx); err != nil {
			return nil, err
		}
		if req.GetBody != nil {
			if req.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
	}
}

// backoff spaces out attempts of a single request.
type backoff struct {
	delay time.Duration
	left  int
}

// pause consumes one attempt and sleeps. It fails once attempts run out or
// ctx ends.
func (b *backoff) pause(ctx context.Context) error {
	b.left--
	if b.left <= 0 {
		return errRetriesExhausted
	}
	requestRetries.Inc()

	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	b.delay = min(2*b.delay, MaxRetryDelay)
	return nil
}

// replayable buffers a body that http.NewRequest could not snapshot so the
// request can be resent.
func replayable(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	_ = req.Body.Close()
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

// transient reports whether err is a network failure worth retrying.
// Cancellation and deadlines never are.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}
