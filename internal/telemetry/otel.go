package telemetry

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// InstrumentationName identifies the tracer and meter used for detector runs.
const InstrumentationName = "github.com/StinkyLord/depscan"

const (
	durationMetricName   = "depscan.detector.duration"
	componentsMetricName = "depscan.detector.components"
)

// OTelSink turns every record into a span covering the detector run and feeds
// the duration histogram and component counter.
type OTelSink struct {
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	components metric.Int64Counter
}

// NewOTelSink builds a sink from the given providers. Nil providers fall back
// to the global ones, which are no-ops unless the CLI installed an exporter.
func NewOTelSink(tp trace.TracerProvider, mp metric.MeterProvider) (*OTelSink, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(InstrumentationName)

	duration, err := meter.Float64Histogram(
		durationMetricName,
		metric.WithDescription("Wall-clock execution time of a detector"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.New(err)
	}

	components, err := meter.Int64Counter(
		componentsMetricName,
		metric.WithDescription("Components discovered by a detector"),
	)
	if err != nil {
		return nil, errors.New(err)
	}

	return &OTelSink{
		tracer:     tp.Tracer(InstrumentationName),
		duration:   duration,
		components: components,
	}, nil
}

// Emit implements Sink.
func (s *OTelSink) Emit(ctx context.Context, record DetectorExecutionRecord) {
	attrs := recordAttributes(record)

	_, span := s.tracer.Start(ctx, "detector "+record.DetectorID,
		trace.WithTimestamp(record.StartTime),
		trace.WithAttributes(attrs...),
	)

	if record.ReturnCode != model.ResultSuccess || record.ExperimentalInformation != "" {
		span.SetStatus(codes.Error, record.ExperimentalInformation)
	}

	span.End(trace.WithTimestamp(record.StartTime.Add(record.ExecutionTime)))

	metricAttrs := metric.WithAttributes(
		attribute.String("detector.id", record.DetectorID),
		attribute.Bool("detector.experimental", record.IsExperimental),
	)

	s.duration.Record(ctx, record.ExecutionTime.Seconds(), metricAttrs)
	s.components.Add(ctx, int64(record.DetectedComponentCount), metricAttrs)
}

func recordAttributes(record DetectorExecutionRecord) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("detector.id", record.DetectorID),
		attribute.Int("detector.version", record.DetectorVersion),
		attribute.String("detector.correlation_id", record.CorrelationID),
		attribute.Int("detector.components", record.DetectedComponentCount),
		attribute.Int("detector.explicit_components", record.ExplicitlyReferencedComponentCount),
		attribute.String("detector.return_code", record.ReturnCode.String()),
		attribute.Bool("detector.experimental", record.IsExperimental),
	}

	if record.ExperimentalInformation != "" {
		attrs = append(attrs, attribute.String("detector.failure", record.ExperimentalInformation))
	}

	keys := make([]string, 0, len(record.AdditionalTelemetryDetails))
	for k := range record.AdditionalTelemetryDetails {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		attrs = append(attrs, attribute.String("detector.detail."+k, record.AdditionalTelemetryDetails[k]))
	}

	return attrs
}
