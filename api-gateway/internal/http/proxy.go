package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/donpico/tienda/pkg/circuitbreaker"
	"github.com/donpico/tienda/pkg/httpx"
	"github.com/donpico/tienda/pkg/logger"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Upstream is a backend service the gateway forwards to.
type Upstream struct {
	Name string
	URL  string
}

// Proxy forwards requests unchanged to one upstream through a circuit
// breaker. Paths are not rewritten.
type Proxy struct {
	name    string
	proxy   *httputil.ReverseProxy
	breaker *circuitbreaker.Transport
}

func NewProxy(up Upstream, settings circuitbreaker.Settings, log zerolog.Logger) (*Proxy, error) {
	target, err := url.Parse(up.URL)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("upstream " + up.Name + ": url needs scheme and host")
	}

	breaker := circuitbreaker.NewTransport(up.Name, http.DefaultTransport, settings, log)
	p := &Proxy{name: up.Name, breaker: breaker}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := httpx.GetRequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(httpx.RequestIDHeader, id)
			}
		},
		Transport:    otelhttp.NewTransport(breaker),
		ErrorHandler: p.handleError,
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		log.Warn().Str("upstream", p.name).Msg("circuit open, rejecting request")
		httpx.RespondError(w, http.StatusServiceUnavailable, "upstream_unavailable", p.name+" is unavailable, try again later")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Str("upstream", p.name).Msg("upstream timed out")
		httpx.RespondError(w, http.StatusGatewayTimeout, "upstream_timeout", p.name+" did not answer in time")
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the answer
		w.WriteHeader(499)
	default:
		log.Error().Err(err).Str("upstream", p.name).Msg("proxy error")
		httpx.RespondError(w, http.StatusBadGateway, "bad_gateway", p.name+" request failed")
	}
}
