package health

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupHttpMux(mux *http.ServeMux, checker Checker) {
	handler := NewHealthCheckHttpHandler(checker)
	mux.Handle("/health", handler)
}

// NewOperationalMux serves /health and the default prometheus registry on /metrics.
func NewOperationalMux(checker Checker) *http.ServeMux {
	mux := http.NewServeMux()
	SetupHttpMux(mux, checker)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
