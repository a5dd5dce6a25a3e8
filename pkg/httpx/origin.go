package httpx

import (
	"net/http"
	"strings"
)

// DefaultOrigins are the storefront frontends allowed to call the API.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"https://ec-don-pico-front.vercel.app",
}

const previewSuffix = ".vercel.app"

// OriginPolicy decides which browser origins may call the API. Requests
// without an Origin header are allowed, as are vercel preview deployments.
type OriginPolicy struct {
	allowed map[string]struct{}
}

func NewOriginPolicy(extra ...string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, o := range append(append([]string{}, DefaultOrigins...), extra...) {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	return strings.HasSuffix(origin, previewSuffix)
}

// CheckRequest matches websocket.Upgrader.CheckOrigin.
func (p *OriginPolicy) CheckRequest(r *http.Request) bool {
	return p.Allowed(r.Header.Get("Origin"))
}
