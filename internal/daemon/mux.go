package daemon

import (
	"net/http"
	"strings"
)

// Routes lists every pattern the intake server may serve, relative to the
// base URL.
var Routes = map[string]struct{}{
	"POST /tenants":                             {},
	"GET /tenants":                              {},
	"GET /tenants/{tenantId}":                   {},
	"DELETE /tenants/{tenantId}":                {},
	"POST /tenants/{tenantId}/retrigger":        {},
	"POST /tenants/{tenantId}/deploy/{service}": {},
	"POST /services/{service}/deploy-all":       {},

	"POST /tenants/{tenantId}/resources":                {},
	"GET /tenants/{tenantId}/resources":                 {},
	"GET /tenants/{tenantId}/resources/{resourceId}":    {},
	"DELETE /tenants/{tenantId}/resources/{resourceId}": {},
}

type ServeMux struct {
	httpServeMux http.ServeMux
	BaseURL      string
}

func NewServeMux(baseURL string) *ServeMux {
	return &ServeMux{
		httpServeMux: http.ServeMux{},
		BaseURL:      baseURL,
	}
}

func (m *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.httpServeMux.ServeHTTP(w, r)
}

// Handle registers pattern under the base URL. Patterns missing from Routes
// panic.
func (m *ServeMux) Handle(pattern string, handler http.Handler) {
	if _, ok := Routes[pattern]; !ok {
		panic("pattern not registered in routes: " + pattern)
	}

	method, path, _ := strings.Cut(pattern, " ")
	m.httpServeMux.Handle(method+" "+m.BaseURL+path, handler)
}

func (m *ServeMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}
