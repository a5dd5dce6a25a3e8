package client

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/donpico/tienda/pkg/circuitbreaker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an instrumented client whose calls go through a
// circuit breaker named after the dependency.
func NewHTTPClient(name string, timeout time.Duration, log zerolog.Logger) *http.Client {
	breaker := circuitbreaker.NewTransport(name, http.DefaultTransport, circuitbreaker.DefaultSettings(), log)
	return &http.Client{
		Transport: otelhttp.NewTransport(breaker),
		Timeout:   timeout,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

func readError(resp *http.Response) errorBody {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return body
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
