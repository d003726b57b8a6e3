package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. 5xx responses
// count as breaker failures; 4xx do not trip the breaker.
type HTTPWrapper struct {
	client  *http.Client
	cb      *Breaker
	name    string
	service string
	logger  *zap.Logger
}

// NewHTTPWrapper creates an HTTP wrapper registered for metrics.
func NewHTTPWrapper(client *http.Client, name, service string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	cb := New(name, HTTPProfile(), logger)
	DefaultRegistry.Register(name, service, cb)
	return &HTTPWrapper{client: client, cb: cb, name: name, service: service, logger: logger}
}

// Do executes the request through the breaker. On a 5xx the breaker records
// a failure but the response is still handed back to the caller.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	DefaultRegistry.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// IsOpen reports whether the breaker is currently rejecting requests.
func (hw *HTTPWrapper) IsOpen() bool {
	return hw.cb.State() == StateOpen
}

// httpStatusError marks 5xx responses for breaker accounting.
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
