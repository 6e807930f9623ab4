package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTDuration.Record(ctx, 0.35)
	m.STTDuration.Record(ctx, 0.12)

	rm := collect(t, reader)
	md := findMetric(rm, "vocalink.stt.duration")
	if md == nil {
		t.Fatal("vocalink.stt.duration not found")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("DataPoints = %d, want 1", len(hist.DataPoints))
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestRecordTranscriptionAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "partial")
	m.RecordTranscription(ctx, "partial")
	m.RecordTranscription(ctx, "final")

	rm := collect(t, reader)
	md := findMetric(rm, "vocalink.stt.transcriptions")
	if md == nil {
		t.Fatal("vocalink.stt.transcriptions not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}

	byKind := map[string]int64{}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key("kind")); ok {
			byKind[v.AsString()] = dp.Value
		}
	}
	if byKind["partial"] != 2 || byKind["final"] != 1 {
		t.Errorf("counts = %v, want partial=2 final=1", byKind)
	}
}

func TestActiveSessionsObservesCallback(t *testing.T) {
	m, reader := newTestMetrics(t)

	var live int64 = 2
	reg, err := m.RegisterActiveSessions(func() int64 { return live })
	if err != nil {
		t.Fatalf("RegisterActiveSessions: %v", err)
	}
	t.Cleanup(func() { _ = reg.Unregister() })

	rm := collect(t, reader)
	md := findMetric(rm, "vocalink.active_sessions")
	if md == nil {
		t.Fatal("vocalink.active_sessions not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("active sessions = %+v, want single data point with value 2", sum.DataPoints)
	}

	live = 1
	rm = collect(t, reader)
	md = findMetric(rm, "vocalink.active_sessions")
	if md == nil {
		t.Fatal("vocalink.active_sessions not found after second collect")
	}
	sum = md.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want single data point with value 1", sum.DataPoints)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "whisper", "stt")

	rm := collect(t, reader)
	md := findMetric(rm, "vocalink.provider.errors")
	if md == nil {
		t.Fatal("vocalink.provider.errors not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("provider errors = %+v, want one data point with value 1", sum.DataPoints)
	}
	set := sum.DataPoints[0].Attributes
	if v, _ := set.Value(attribute.Key("provider")); v.AsString() != "whisper" {
		t.Errorf("provider attribute = %q, want %q", v.AsString(), "whisper")
	}
	if v, _ := set.Value(attribute.Key("kind")); v.AsString() != "stt" {
		t.Errorf("kind attribute = %q, want %q", v.AsString(), "stt")
	}
}
