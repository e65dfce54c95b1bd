package model

import (
	"maps"
	"slices"
)

// ContainerDetails describes a container image a detector scanned.
type ContainerDetails struct {
	ID      int      `json:"id"`
	ImageID string   `json:"imageId"`
	Digests []string `json:"digests,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Layers  []Layer  `json:"layers,omitempty"`
}

// Layer is one layer of a container image.
type Layer struct {
	DiffID     string `json:"diffId"`
	LayerIndex int    `json:"layerIndex"`
}

// DetectedComponent is the mutable aggregation record: one sighting of a
// component by one detector, accumulating every location it was found at.
type DetectedComponent struct {
	Component Component

	// FilePaths holds root relative, forward slash paths.
	FilePaths map[string]struct{}

	// DependencyRoots are the explicitly referenced components that pull this one in, keyed by ID.
	DependencyRoots map[string]Component

	// DevelopmentDependency is nil when no location reported anything.
	DevelopmentDependency *bool

	// DetectedBy is the ID of the detector that produced the record.
	DetectedBy string

	ContainerDetailIDs map[int]struct{}
	ContainerLayerIDs  map[int][]int
}

// NewDetectedComponent returns an empty record for the given component.
func NewDetectedComponent(component Component) *DetectedComponent {
	return &DetectedComponent{
		Component:          component,
		FilePaths:          map[string]struct{}{},
		DependencyRoots:    map[string]Component{},
		ContainerDetailIDs: map[int]struct{}{},
		ContainerLayerIDs:  map[int][]int{},
	}
}

// AddComponentFilePath records a location the component was found at.
func (dc *DetectedComponent) AddComponentFilePath(path string) {
	if dc.FilePaths == nil {
		dc.FilePaths = map[string]struct{}{}
	}

	dc.FilePaths[path] = struct{}{}
}

// AddDependencyRoot records an explicitly referenced component that leads to this one.
func (dc *DetectedComponent) AddDependencyRoot(root Component) {
	if dc.DependencyRoots == nil {
		dc.DependencyRoots = map[string]Component{}
	}

	dc.DependencyRoots[root.ID()] = root
}

// AddContainerDetailID records that the component was found in the given container.
func (dc *DetectedComponent) AddContainerDetailID(id int, layerIDs ...int) {
	if dc.ContainerDetailIDs == nil {
		dc.ContainerDetailIDs = map[int]struct{}{}
	}

	dc.ContainerDetailIDs[id] = struct{}{}

	if len(layerIDs) == 0 {
		return
	}

	if dc.ContainerLayerIDs == nil {
		dc.ContainerLayerIDs = map[int][]int{}
	}

	for _, layer := range layerIDs {
		if !slices.Contains(dc.ContainerLayerIDs[id], layer) {
			dc.ContainerLayerIDs[id] = append(dc.ContainerLayerIDs[id], layer)
		}
	}

	slices.Sort(dc.ContainerLayerIDs[id])
}

// Clone returns a deep copy; the translation phase works on clones so recorder
// state is never mutated after detection.
func (dc *DetectedComponent) Clone() *DetectedComponent {
	clone := &DetectedComponent{
		Component:          dc.Component,
		FilePaths:          maps.Clone(dc.FilePaths),
		DependencyRoots:    maps.Clone(dc.DependencyRoots),
		DetectedBy:         dc.DetectedBy,
		ContainerDetailIDs: maps.Clone(dc.ContainerDetailIDs),
		ContainerLayerIDs:  make(map[int][]int, len(dc.ContainerLayerIDs)),
	}

	if dc.DevelopmentDependency != nil {
		dev := *dc.DevelopmentDependency
		clone.DevelopmentDependency = &dev
	}

	for id, layers := range dc.ContainerLayerIDs {
		clone.ContainerLayerIDs[id] = slices.Clone(layers)
	}

	if clone.FilePaths == nil {
		clone.FilePaths = map[string]struct{}{}
	}

	if clone.DependencyRoots == nil {
		clone.DependencyRoots = map[string]Component{}
	}

	if clone.ContainerDetailIDs == nil {
		clone.ContainerDetailIDs = map[int]struct{}{}
	}

	return clone
}

// MergeDevelopmentDependency combines two development-dependency observations.
// Unknown (nil) absorbs into a known value; two known values are ANDed, so a
// single "not a dev dependency" report wins permanently.
func MergeDevelopmentDependency(left, right *bool) *bool {
	if left == nil {
		return cloneBool(right)
	}

	if right == nil {
		return cloneBool(left)
	}

	merged := *left && *right

	return &merged
}

// Bool returns a pointer to v, for building tri-state flags.
func Bool(v bool) *bool {
	return &v
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}

	out := *v

	return &out
}
