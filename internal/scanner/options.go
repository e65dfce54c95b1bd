package scanner

import (
	"slices"
)

// Options are the scan-wide settings of a detector run.
type Options struct {
	SourceDirectory string

	// DetectorArgs are "key=value" tokens; tokens without "=" are ignored.
	DetectorArgs []string

	// DirectoryExclusionList holds glob patterns of directories to skip.
	DirectoryExclusionList []string

	// DirectoryExclusionListObsolete holds path fragments matched by substring.
	DirectoryExclusionListObsolete []string

	AllowWindowsPaths bool
	IgnoreCase        bool

	// MaxDetectorParallelism bounds concurrently running detectors; 0 means no limit.
	MaxDetectorParallelism int

	// MaxFileParallelism bounds concurrently parsed files within one detector.
	MaxFileParallelism int
}

// Restrictions select which detectors run and how their failures are treated.
type Restrictions struct {
	// AllowedDetectorIDs restricts the run to the listed detectors. Empty means all.
	AllowedDetectorIDs []string

	// ExplicitlyEnabledDetectorIDs lists experimental detectors that run like
	// any other: their components are kept and their failures are fatal.
	ExplicitlyEnabledDetectorIDs []string
}

func (r Restrictions) allows(id string) bool {
	return len(r.AllowedDetectorIDs) == 0 || slices.Contains(r.AllowedDetectorIDs, id)
}

func (r Restrictions) explicitlyEnabled(id string) bool {
	return slices.Contains(r.ExplicitlyEnabledDetectorIDs, id)
}
