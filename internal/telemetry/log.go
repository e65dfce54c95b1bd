package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/StinkyLord/depscan/internal/model"
)

// LogSink writes one structured log line per record. Successful runs are
// logged at debug level, failures at warn.
type LogSink struct {
	Logger logrus.FieldLogger
}

// Emit implements Sink.
func (s LogSink) Emit(_ context.Context, record DetectorExecutionRecord) {
	if s.Logger == nil {
		return
	}

	entry := s.Logger.WithFields(logrus.Fields{
		"detector":     record.DetectorID,
		"version":      record.DetectorVersion,
		"correlation":  record.CorrelationID,
		"duration":     record.ExecutionTime.String(),
		"components":   record.DetectedComponentCount,
		"explicit":     record.ExplicitlyReferencedComponentCount,
		"code":         record.ReturnCode.String(),
		"experimental": record.IsExperimental,
	})

	for k, v := range record.AdditionalTelemetryDetails {
		entry = entry.WithField("detail."+k, v)
	}

	if record.ReturnCode != model.ResultSuccess || record.ExperimentalInformation != "" {
		if record.ExperimentalInformation != "" {
			entry = entry.WithField("failure", record.ExperimentalInformation)
		}

		entry.Warn("Detector finished with problems")

		return
	}

	entry.Debug("Detector finished")
}
