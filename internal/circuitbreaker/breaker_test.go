package circuitbreaker

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cb := New("test", Config{
		MaxRequests:      1,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	}, logger)

	failing := errors.New("backend down")
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return failing }); !errors.Is(err, failing) {
			t.Fatalf("call %d: got %v, want %v", i, err, failing)
		}
	}

	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after failures = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("open breaker returned %v, want ErrOpen", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cb := New("test", Config{
		MaxRequests:      2,
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 1,
		SuccessThreshold: 2,
	}, logger)

	if err := cb.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure to propagate")
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(30 * time.Millisecond)

	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", got)
	}
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after probes = %v, want closed", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cb := New("test", Config{
		MaxRequests:      1,
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}, logger)

	cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(func() error { return errors.New("still down") }); err == nil {
		t.Fatal("expected probe failure to propagate")
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cb := New("test", Config{
		MaxRequests:      1,
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 1,
		SuccessThreshold: 2,
	}, logger)

	cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(30 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("second probe returned %v, want ErrTooManyRequests", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe failed: %v", err)
	}
}

func TestHTTPWrapperServerErrorsTripBreaker(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	wrapper := NewHTTPWrapper("test-backend", srv.Client(), Config{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}, logger)

	status = http.StatusBadGateway
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := wrapper.Do(req)
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("call %d: status = %d, want 502", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	if got := wrapper.State(); got != StateOpen {
		t.Fatalf("state after 5xx responses = %v, want open", got)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := wrapper.Do(req); !errors.Is(err, ErrOpen) {
		t.Fatalf("open wrapper returned %v, want ErrOpen", err)
	}
}

func TestHTTPWrapperClientErrorsDoNotTrip(t *testing.T) {
	logger := zaptest.NewLogger(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wrapper := NewHTTPWrapper("test-backend-4xx", srv.Client(), Config{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}, logger)

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := wrapper.Do(req)
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("call %d: status = %d, want 404", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	if got := wrapper.State(); got != StateClosed {
		t.Fatalf("state after 4xx responses = %v, want closed", got)
	}
}
