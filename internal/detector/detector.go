// Package detector defines the contract every component detector implements
// and the shared machinery file-based detectors are built on.
package detector

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/exclusion"
	"github.com/StinkyLord/depscan/internal/model"
)

// Info is the stable identity of a detector.
type Info struct {
	// ID is unique among registered detectors and prefixes detector arguments.
	ID string

	Version int

	// Experimental detectors run in isolation: unless explicitly enabled, their
	// failures are not fatal and their components are left out of the result.
	Experimental bool
}

// Detector discovers components under a source tree and records them in the
// request's ComponentRecorder.
type Detector interface {
	Info() Info
	Execute(ctx context.Context, req *ScanRequest) (*Result, error)
}

// ScanRequest is everything a detector gets for one scan.
type ScanRequest struct {
	// ExcludeDirectory is shared by all detectors and must not be modified.
	ExcludeDirectory  exclusion.Predicate
	DetectorArgs      map[string]string
	ComponentRecorder *depgraph.ComponentRecorder
	Logger            logrus.FieldLogger
	SourceDirectory   string

	// MaxFileParallelism bounds how many files a detector parses at once.
	MaxFileParallelism int
}

// Result is what a detector reports back once it is done.
type Result struct {
	ContainerDetails           map[int]*model.ContainerDetails
	AdditionalTelemetryDetails map[string]string
	Code                       model.ResultCode
}

// Success is a result with no extra information.
func Success() *Result {
	return &Result{Code: model.ResultSuccess}
}

func (req *ScanRequest) logger(id string) logrus.FieldLogger {
	logger := req.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return logger.WithField("detector", id)
}

func (req *ScanRequest) exclude() exclusion.Predicate {
	if req.ExcludeDirectory == nil {
		return exclusion.None
	}

	return req.ExcludeDirectory
}
