package rendezvous

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type serverMetrics struct {
	set *metrics.Set

	datagrams_received_total *metrics.Counter
	datagrams_dropped_total  struct {
		parse_error   *metrics.Counter
		unknown_peer  *metrics.Counter
		decrypt_error *metrics.Counter
		send_error    *metrics.Counter
	}
	requests_total struct {
		register   *metrics.Counter
		mapping    *metrics.Counter
		deregister *metrics.Counter
	}
	registered_pubkeys            *metrics.Gauge
	registered_addresses          *metrics.Gauge
	garbage_collect_evicted_total *metrics.Counter
}

func newServerMetrics(store *ClientStore) *serverMetrics {
	m := &serverMetrics{set: metrics.NewSet()}
	m.datagrams_received_total = m.set.NewCounter(`warp_map_datagrams_received_total`)
	m.datagrams_dropped_total.parse_error = m.set.NewCounter(`warp_map_datagrams_dropped_total{reason="parse_error"}`)
	m.datagrams_dropped_total.unknown_peer = m.set.NewCounter(`warp_map_datagrams_dropped_total{reason="unknown_peer"}`)
	m.datagrams_dropped_total.decrypt_error = m.set.NewCounter(`warp_map_datagrams_dropped_total{reason="decrypt_error"}`)
	m.datagrams_dropped_total.send_error = m.set.NewCounter(`warp_map_datagrams_dropped_total{reason="send_error"}`)
	m.requests_total.register = m.set.NewCounter(`warp_map_requests_total{type="register"}`)
	m.requests_total.mapping = m.set.NewCounter(`warp_map_requests_total{type="mapping"}`)
	m.requests_total.deregister = m.set.NewCounter(`warp_map_requests_total{type="deregister"}`)
	m.garbage_collect_evicted_total = m.set.NewCounter(`warp_map_garbage_collect_evicted_total`)
	m.registered_pubkeys = m.set.NewGauge(`warp_map_registered_pubkeys`, func() float64 {
		pubkeys, _ := store.Counts()
		return float64(pubkeys)
	})
	m.registered_addresses = m.set.NewGauge(`warp_map_registered_addresses`, func() float64 {
		_, addresses := store.Counts()
		return float64(addresses)
	})
	return m
}

// WritePrometheus writes all rendezvous server metrics in Prometheus
// exposition format.
func (m *serverMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
