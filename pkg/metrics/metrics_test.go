package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordPullSuccessIncrementsCounter(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	image := "docker.io/library/alpine:latest"
	RecordPullSuccess(image)

	if got := testutil.ToFloat64(PullSuccessCounter().WithLabelValues(image)); got != 1 {
		t.Fatalf("expected pull counter to be 1, got %v", got)
	}
}

func TestRecordPushErrorIncrementsCounter(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	image := "registry.example.com/mirror/docker.io-library-alpine:latest"
	RecordPushError(image)

	if got := testutil.ToFloat64(PushErrorCounter().WithLabelValues(image)); got != 1 {
		t.Fatalf("expected push error counter to be 1, got %v", got)
	}
}

func TestRecordPublishCounters(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	RecordPublishSuccess("cc/install.sh")
	RecordPublishSuccess("cc/install.sh")
	RecordPublishError("cc/stable")

	var m dto.Metric
	if err := PublishSuccessCounter().WithLabelValues("cc/install.sh").Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected publish counter to be 2, got %v", got)
	}
	if got := testutil.ToFloat64(PublishErrorCounter().WithLabelValues("cc/stable")); got != 1 {
		t.Fatalf("expected publish error counter to be 1, got %v", got)
	}
}

func TestRecordIgnoresEmptyLabel(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	RecordPullSuccess("")
	RecordPullError("")
	RecordPushSuccess("")
	RecordPushError("")
	RecordPublishSuccess("")
	RecordPublishError("")

	if count := testutil.CollectAndCount(PullSuccessCounter()); count != 0 {
		t.Fatalf("expected pull counter to remain empty, got %d samples", count)
	}
	if count := testutil.CollectAndCount(PublishSuccessCounter()); count != 0 {
		t.Fatalf("expected publish counter to remain empty, got %d samples", count)
	}
	if count := testutil.CollectAndCount(PushErrorCounter()); count != 0 {
		t.Fatalf("expected push error counter to remain empty, got %d samples", count)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	t.Cleanup(Reset)
	Reset()
	RecordPushSuccess("registry.example.com/mirror/docker.io-library-nginx:1.25")

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Push(context.Background(), srv.URL, "replicator_images"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/metrics/job/replicator_images" {
		t.Fatalf("unexpected push path %q", gotPath)
	}
	if gotBody == "" {
		t.Fatalf("expected a non-empty push body")
	}
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	if err := Push(context.Background(), "  ", "job"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
