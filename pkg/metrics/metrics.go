package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry collects every replicator metric. Runs are short lived, so the
// registry is pushed to a Pushgateway instead of being scraped.
var Registry = prometheus.NewRegistry()

var (
	pullSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "registry",
			Name:      "pull_success_total",
			Help:      "Total number of successful image pulls.",
		},
		[]string{"image"},
	)

	pullError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "registry",
			Name:      "pull_error_total",
			Help:      "Total number of failed image pulls.",
		},
		[]string{"image"},
	)

	pushSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "registry",
			Name:      "push_success_total",
			Help:      "Total number of successful image pushes.",
		},
		[]string{"image"},
	)

	pushError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "registry",
			Name:      "push_error_total",
			Help:      "Total number of failed image pushes.",
		},
		[]string{"image"},
	)

	publishSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "storage",
			Name:      "publish_success_total",
			Help:      "Total number of artifacts published to object storage.",
		},
		[]string{"key"},
	)

	publishError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicator",
			Subsystem: "storage",
			Name:      "publish_error_total",
			Help:      "Total number of artifacts that failed to fetch or publish.",
		},
		[]string{"key"},
	)
)

func init() {
	Registry.MustRegister(pullSuccess, pullError, pushSuccess, pushError, publishSuccess, publishError)
}

func inc(vec *prometheus.CounterVec, label string) {
	if label == "" {
		return
	}
	vec.WithLabelValues(label).Inc()
}

// RecordPullSuccess increments the pull success counter for the provided image.
func RecordPullSuccess(image string) { inc(pullSuccess, image) }

// RecordPullError increments the pull error counter for the provided image.
func RecordPullError(image string) { inc(pullError, image) }

// RecordPushSuccess increments the push success counter for the provided image.
func RecordPushSuccess(image string) { inc(pushSuccess, image) }

// RecordPushError increments the push error counter for the provided image.
func RecordPushError(image string) { inc(pushError, image) }

// RecordPublishSuccess increments the publish counter for an object key.
func RecordPublishSuccess(key string) { inc(publishSuccess, key) }

// RecordPublishError increments the publish error counter for an object key.
func RecordPublishError(key string) { inc(publishError, key) }

// Push sends the registry to a Pushgateway under job. An empty url is a no-op.
func Push(ctx context.Context, url, job string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Reset clears internal metrics state. It is intended for use in tests only.
func Reset() {
	pullSuccess.Reset()
	pullError.Reset()
	pushSuccess.Reset()
	pushError.Reset()
	publishSuccess.Reset()
	publishError.Reset()
}

// PullSuccessCounter returns the underlying prometheus counter for pull successes.
func PullSuccessCounter() *prometheus.CounterVec { return pullSuccess }

// PullErrorCounter returns the underlying prometheus counter for pull errors.
func PullErrorCounter() *prometheus.CounterVec { return pullError }

// PushSuccessCounter returns the underlying prometheus counter for push successes.
func PushSuccessCounter() *prometheus.CounterVec { return pushSuccess }

// PushErrorCounter returns the underlying prometheus counter for push errors.
func PushErrorCounter() *prometheus.CounterVec { return pushError }

// PublishSuccessCounter returns the underlying prometheus counter for published artifacts.
func PublishSuccessCounter() *prometheus.CounterVec { return publishSuccess }

// PublishErrorCounter returns the underlying prometheus counter for failed artifacts.
func PublishErrorCounter() *prometheus.CounterVec { return publishError }
