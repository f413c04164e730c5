package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry in the prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result turns an error into the "ok" / "error" label used by the result counters
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
