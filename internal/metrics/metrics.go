// Package metrics exports device state as Prometheus collectors.
// Nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/drybox/log2"
)

const namespace = "drybox"

const (
	InboundApplied  = "applied"
	InboundDropped  = "dropped"
	InboundRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	temperature      prometheus.Gauge
	humidity         prometheus.Gauge
	lastReading      prometheus.Gauge
	sensorFailures   prometheus.Counter
	published        *prometheus.CounterVec
	inbound          *prometheus.CounterVec
	alarmActive      prometheus.Gauge
	alarmTransitions *prometheus.CounterVec
	loopFaults       prometheus.Counter
	brokerConnected  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "temperature_celsius",
			Help: "Last calibrated temperature reading.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidity_percent",
			Help: "Last calibrated relative humidity reading.",
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_reading_timestamp_seconds",
			Help: "Unix time of last successful sensor reading.",
		}),
		sensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_failures_total",
			Help: "Failed sensor sample attempts.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "readings_published_total",
			Help: "Reading publish attempts by result.",
		}, []string{"result"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "config_messages_total",
			Help: "Inbound configuration messages by result.",
		}, []string{"result"}),
		alarmActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "alarm_active",
			Help: "1 while buzzer is on.",
		}),
		alarmTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alarm_transitions_total",
			Help: "Alarm state changes.",
		}, []string{"transition"}),
		loopFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loop_faults_total",
			Help: "Main loop iterations ended with error or panic.",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "broker_connected",
			Help: "1 while MQTT session is up.",
		}),
	}
	m.registry.MustRegister(
		m.temperature, m.humidity, m.lastReading, m.sensorFailures,
		m.published, m.inbound, m.alarmActive, m.alarmTransitions,
		m.loopFaults, m.brokerConnected,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveReading(temp, humi float64, at time.Time) {
	if m == nil {
		return
	}
	m.temperature.Set(temp)
	m.humidity.Set(humi)
	m.lastReading.Set(float64(at.Unix()))
}

func (m *Metrics) SensorFailure() {
	if m == nil {
		return
	}
	m.sensorFailures.Inc()
}

func (m *Metrics) Published(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *Metrics) Inbound(result string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(result).Inc()
}

func (m *Metrics) Alarm(active bool, transition string) {
	if m == nil {
		return
	}
	m.alarmActive.Set(boolFloat(active))
	m.alarmTransitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) LoopFault() {
	if m == nil {
		return
	}
	m.loopFaults.Inc()
}

func (m *Metrics) BrokerConnected(up bool) {
	if m == nil {
		return
	}
	m.brokerConnected.Set(boolFloat(up))
}

func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs HTTP exporter until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *log2.Log) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	errch := make(chan error, 1)
	go func() { errch <- srv.ListenAndServe() }()
	log.Infof("metrics listen=%s", addr)
	select {
	case err := <-errch:
		return errors.Annotatef(err, "metrics listen=%s", addr)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return errors.Annotate(err, "metrics shutdown")
		}
		return nil
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
