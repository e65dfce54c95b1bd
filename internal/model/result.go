package model

import "fmt"

// ResultCode is the outcome a detector reports. Higher values are worse, which
// lets the engine pick the worst code observed across detectors.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultPartialSuccess
	ResultInputError
	ResultTimeoutError
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "Success"
	case ResultPartialSuccess:
		return "PartialSuccess"
	case ResultInputError:
		return "InputError"
	case ResultTimeoutError:
		return "TimeoutError"
	default:
		return fmt.Sprintf("ResultCode(%d)", int(c))
	}
}

// MarshalText renders the code by name in JSON output.
func (c ResultCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a code written by MarshalText.
func (c *ResultCode) UnmarshalText(text []byte) error {
	for code := ResultSuccess; code <= ResultTimeoutError; code++ {
		if code.String() == string(text) {
			*c = code
			return nil
		}
	}

	return fmt.Errorf("unknown result code %q", string(text))
}

// Worst returns the more severe of two codes.
func (c ResultCode) Worst(other ResultCode) ResultCode {
	if other > c {
		return other
	}

	return c
}

// ScannedComponent is the output contract for one merged (component, detector) pair.
type ScannedComponent struct {
	Component               Component     `json:"component"`
	DetectorID              string        `json:"detectorId"`
	IsDevelopmentDependency *bool         `json:"isDevelopmentDependency,omitempty"`
	LocationsFoundAt        []string      `json:"locationsFoundAt"`
	TopLevelReferrers       []Component   `json:"topLevelReferrers"`
	ContainerDetailIDs      []int         `json:"containerDetailIds,omitempty"`
	ContainerLayerIDs       map[int][]int `json:"containerLayerIds,omitempty"`
}

// GraphWithMetadata is the merged dependency graph found at one location.
// Graph maps a component ID to the IDs it depends on.
type GraphWithMetadata struct {
	Graph                            map[string][]string `json:"graph"`
	ExplicitlyReferencedComponentIDs []string            `json:"explicitlyReferencedComponentIds"`
	DevelopmentDependencies          []string            `json:"developmentDependencies"`
	Dependencies                     []string            `json:"dependencies"`
}

// DependencyGraphCollection maps a scanned location to its merged graph.
type DependencyGraphCollection map[string]*GraphWithMetadata

// DetectorInRun summarises one detector's participation in a scan.
type DetectorInRun struct {
	DetectorID     string     `json:"detectorId"`
	Version        int        `json:"version"`
	IsExperimental bool       `json:"isExperimental"`
	ResultCode     ResultCode `json:"resultCode"`
}

// ScanResult is the final, read-only product of a scan.
type ScanResult struct {
	SourceDirectory     string                    `json:"sourceDirectory"`
	ResultCode          ResultCode                `json:"resultCode"`
	ComponentsFound     []ScannedComponent        `json:"componentsFound"`
	ContainerDetailsMap map[int]*ContainerDetails `json:"containerDetailsMap"`
	DependencyGraphs    DependencyGraphCollection `json:"dependencyGraphs"`
	DetectorsInRun      []DetectorInRun           `json:"detectorsInRun"`
}
