package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var countedLevels = []logrus.Level{
	logrus.DebugLevel,
	logrus.InfoLevel,
	logrus.WarnLevel,
	logrus.ErrorLevel,
}

// PrometheusHook is a logrus.Hook counting log lines by level.
type PrometheusHook struct {
	counter *prometheus.CounterVec
}

// NewPrometheusHook creates the log_messages counter on the supplied registerer.
func NewPrometheusHook(prefix string, registerer prometheus.Registerer) *PrometheusHook {
	counter := promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "log_messages",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	for _, level := range countedLevels {
		counter.WithLabelValues(level.String())
	}
	return &PrometheusHook{counter: counter}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return countedLevels
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
