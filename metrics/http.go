package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streamforge/vodpipe/log"
)

// ListenAndServe exposes the Prometheus registry on /metrics, bound on all
// interfaces (0.0.0.0), the same handler the teacher wires for its own
// metrics endpoint.
func ListenAndServe(promPort int) error {
	listen := fmt.Sprintf("0.0.0.0:%d", promPort)
	http.Handle("/metrics", promhttp.Handler())

	log.LogNoRequestID("starting prometheus metrics", "host", listen)
	return http.ListenAndServe(listen, nil)
}
