package kafka

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts produced and consumed messages.
type Metrics struct {
	Published  *prometheus.CounterVec
	PublishErr *prometheus.CounterVec
	Processed  *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Duplicates *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the Kafka collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	m := &Metrics{
		Published:  counter("kafka_producer_messages_published_total", "Messages published", "topic"),
		PublishErr: counter("kafka_producer_errors_total", "Publish failures", "topic"),
		Processed:  counter("kafka_consumer_messages_processed_total", "Messages handled successfully", "topic", "consumer_group"),
		Failed:     counter("kafka_consumer_messages_failed_total", "Messages that exhausted retries", "topic", "consumer_group"),
		Duplicates: counter("kafka_consumer_messages_duplicate_total", "Messages skipped as already processed", "event_type"),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kafka_consumer_processing_duration_seconds",
			Help:    "Handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic", "consumer_group"}),
	}
	reg.MustRegister(m.Published, m.PublishErr, m.Processed, m.Failed, m.Duplicates, m.Duration)
	return m
}
