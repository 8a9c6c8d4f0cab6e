package circuitbreaker

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/metrics"
)

// HTTPWrapper puts a Breaker in front of an http.Client. Server errors
// (5xx) count against the breaker but the response is still handed back
// to the caller so it can read status and body.
type HTTPWrapper struct {
	client *http.Client
	cb     *Breaker
	logger *zap.Logger
}

// httpStatusError marks a 5xx response as a failure for the breaker
// without hiding the response from the caller.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server error: status %d", e.status)
}

// NewHTTPWrapper builds a breaker-guarded client for the named backend.
// State transitions are exported through the circuit breaker metrics.
func NewHTTPWrapper(name string, client *http.Client, config Config, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	userHook := config.OnStateChange
	config.OnStateChange = func(name string, from, to State) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if to == StateOpen {
			metrics.CircuitBreakerTrips.WithLabelValues(name).Inc()
		}
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))

	return &HTTPWrapper{
		client: client,
		cb:     New(name, config, logger),
		logger: logger,
	}
}

// Do executes the request under the breaker.
func (w *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	err := w.cb.Execute(func() error {
		var callErr error
		resp, callErr = w.client.Do(req)
		if callErr != nil {
			return callErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{status: resp.StatusCode}
		}
		return nil
	})

	if err != nil {
		// A 5xx trips the breaker, the caller still gets the response.
		if _, ok := err.(*httpStatusError); ok {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// State exposes the underlying breaker state.
func (w *HTTPWrapper) State() State {
	return w.cb.State()
}
