package httpu

import (
	"net"
	"net/http"
	"time"

	"github.com/happut/incubator-paimon/telemetry"
)

// NewClient returns an http.Client with request metrics recorded under
// metricName.
//
// The transport is a private instance rather than http.DefaultTransport:
// a shared transport holds idle connections that outlive the client, which
// keeps test servers from ever finishing their Shutdown. Object stores see
// many parallel range reads against one host, so the per-host idle pool is
// raised above the transport default.
func NewClient(metricName string) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: telemetry.NewMetricsTransport(metricName, transport),
	}
}
