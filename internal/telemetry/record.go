// Package telemetry records how each detector performed during a scan and
// forwards those records to logs, tests and OpenTelemetry.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/StinkyLord/depscan/internal/model"
)

// DetectorExecutionRecord describes a single detector run. Exactly one record
// is emitted per detector per scan, whether it succeeded or failed.
type DetectorExecutionRecord struct {
	StartTime                          time.Time         `json:"startTime"`
	AdditionalTelemetryDetails         map[string]string `json:"additionalTelemetryDetails,omitempty"`
	DetectorID                         string            `json:"detectorId"`
	DetectorVersion                    int               `json:"detectorVersion"`
	CorrelationID                      string            `json:"correlationId"`
	ExperimentalInformation            string            `json:"experimentalInformation,omitempty"`
	ExecutionTime                      time.Duration     `json:"executionTime"`
	DetectedComponentCount             int               `json:"detectedComponentCount"`
	ExplicitlyReferencedComponentCount int               `json:"explicitlyReferencedComponentCount"`
	ReturnCode                         model.ResultCode  `json:"returnCode"`
	IsExperimental                     bool              `json:"isExperimental"`
}

// Sink receives detector execution records. Implementations must be safe for
// concurrent use; detectors finish in any order.
type Sink interface {
	Emit(ctx context.Context, record DetectorExecutionRecord)
}

// Collector keeps every emitted record in memory.
type Collector struct {
	records []DetectorExecutionRecord
	mu      sync.Mutex
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Emit implements Sink.
func (c *Collector) Emit(_ context.Context, record DetectorExecutionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, record)
}

// Records returns the collected records ordered by detector ID.
func (c *Collector) Records() []DetectorExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DetectorExecutionRecord, len(c.records))
	copy(out, c.records)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectorID < out[j].DetectorID
	})

	return out
}

// Multi fans a record out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, record DetectorExecutionRecord) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, record)
		}
	}
}

// Discard drops every record.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, DetectorExecutionRecord) {}
