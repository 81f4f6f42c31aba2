package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func counter(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func duration(subsystem, name, help string, labels []string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

// Consumer metrics.
var (
	ConsumerMessagesReceived = counter("consumer", "messages_received_total",
		"Total number of Kafka messages fetched from the broker", consumerLabels)
	ConsumerMessagesProcessed = counter("consumer", "messages_processed_total",
		"Total number of Kafka messages handled successfully", consumerLabels)
	ConsumerMessagesFailed = counter("consumer", "messages_failed_total",
		"Total number of Kafka messages that failed every retry", consumerLabels)
	ConsumerHandlerRetries = counter("consumer", "handler_retries_total",
		"Total number of Kafka handler attempts that were retried", consumerLabels)
	ConsumerDLQPublished = counter("consumer", "dlq_published_total",
		"Total number of Kafka messages published to the dead-letter queue", consumerLabels)
	ConsumerProcessingDuration = duration("consumer", "processing_duration_seconds",
		"Duration of Kafka message handling in seconds, retries included", consumerLabels)

	// ConsumerMessagesDuplicate is labelled by event type because the
	// idempotency guard wraps a handler, not a reader.
	ConsumerMessagesDuplicate = counter("consumer", "messages_duplicate_total",
		"Total number of duplicate Kafka events skipped by the idempotency guard", []string{"event_type"})
)

// Producer metrics.
var (
	ProducerMessagesPublished = counter("producer", "messages_published_total",
		"Total number of Kafka messages published", producerLabels)
	ProducerPublishErrors = counter("producer", "publish_errors_total",
		"Total number of Kafka publish errors", producerLabels)
	ProducerPublishDuration = duration("producer", "publish_duration_seconds",
		"Duration of Kafka publish calls in seconds", producerLabels)
)
