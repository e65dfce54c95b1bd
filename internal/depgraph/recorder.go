package depgraph

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// ErrInvalidComponent is returned when a detector registers an unusable component.
var ErrInvalidComponent = errors.Errorf("invalid component registration")

// ComponentRecorder collects everything one detector discovers during a scan.
// It owns one DependencyGraph per scanned location. A detector may process
// several files concurrently; each file task works through its own
// SingleFileRecorder and the recorder is safe for that use.
type ComponentRecorder struct {
	recorders *xsync.MapOf[string, *SingleFileRecorder]
}

// NewComponentRecorder returns an empty recorder.
func NewComponentRecorder() *ComponentRecorder {
	return &ComponentRecorder{
		recorders: xsync.NewMapOf[string, *SingleFileRecorder](),
	}
}

// CreateSingleFileComponentRecorder returns the recorder for the given location,
// creating it on first use. Repeated calls with the same location return the
// same recorder.
func (r *ComponentRecorder) CreateSingleFileComponentRecorder(location string) *SingleFileRecorder {
	recorder, _ := r.recorders.LoadOrCompute(location, func() *SingleFileRecorder {
		return newSingleFileRecorder(location)
	})

	return recorder
}

// DetectedComponents returns every distinct component ever registered, one
// record per ID. Container details seen at different locations are merged.
// The records are copies; mutating them does not affect the recorder.
func (r *ComponentRecorder) DetectedComponents() []*model.DetectedComponent {
	byID := map[string]*model.DetectedComponent{}

	for _, location := range r.locations() {
		recorder, _ := r.recorders.Load(location)

		for _, dc := range recorder.snapshot() {
			id := dc.Component.ID()

			existing, ok := byID[id]
			if !ok {
				byID[id] = dc
				continue
			}

			for containerID := range dc.ContainerDetailIDs {
				existing.AddContainerDetailID(containerID, dc.ContainerLayerIDs[containerID]...)
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	out := make([]*model.DetectedComponent, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}

	return out
}

// Component returns the identity of a registered component.
func (r *ComponentRecorder) Component(id string) (model.Component, bool) {
	var (
		found model.Component
		ok    bool
	)

	r.recorders.Range(func(_ string, recorder *SingleFileRecorder) bool {
		if dc, exists := recorder.components.Load(id); exists {
			found, ok = dc.Component, true
			return false
		}

		return true
	})

	return found, ok
}

// DependencyGraphsByLocation returns the graph of every location keyed by location.
// The map is a fresh copy; the graphs themselves are shared.
func (r *ComponentRecorder) DependencyGraphsByLocation() map[string]*DependencyGraph {
	graphs := make(map[string]*DependencyGraph, r.recorders.Size())

	r.recorders.Range(func(location string, recorder *SingleFileRecorder) bool {
		graphs[location] = recorder.graph
		return true
	})

	return graphs
}

// ExplicitlyReferencedComponentCount returns how many distinct components are
// explicitly referenced at one or more locations.
func (r *ComponentRecorder) ExplicitlyReferencedComponentCount() int {
	explicit := map[string]struct{}{}

	for _, graph := range r.DependencyGraphsByLocation() {
		for _, id := range graph.Components() {
			if graph.IsExplicit(id) {
				explicit[id] = struct{}{}
			}
		}
	}

	return len(explicit)
}

func (r *ComponentRecorder) locations() []string {
	var locations []string

	r.recorders.Range(func(location string, _ *SingleFileRecorder) bool {
		locations = append(locations, location)
		return true
	})

	sort.Strings(locations)

	return locations
}

// SingleFileRecorder is the write handle for one scanned location.
type SingleFileRecorder struct {
	location   string
	graph      *DependencyGraph
	components *xsync.MapOf[string, *model.DetectedComponent]

	// mu serialises merges into records already stored in components.
	mu sync.Mutex
}

func newSingleFileRecorder(location string) *SingleFileRecorder {
	return &SingleFileRecorder{
		location:   location,
		graph:      NewDependencyGraph(),
		components: xsync.NewMapOf[string, *model.DetectedComponent](),
	}
}

// Location returns the scanned location this recorder writes to.
func (s *SingleFileRecorder) Location() string {
	return s.location
}

// DependencyGraph returns the graph of this location.
func (s *SingleFileRecorder) DependencyGraph() *DependencyGraph {
	return s.graph
}

// RegisterUsage records a sighting of a component at this location.
//
// When parentID is set the parent -> component edge is added (the parent node
// is created if needed). isExplicit marks the component as directly referenced
// by the manifest. A non-nil isDevelopment is merged into the component's flag
// at this location: unknown absorbs into known, and two known values are ANDed.
//
// The first registration of an ID is kept as the canonical record; container
// details from later registrations are merged into it. The canonical record is
// returned.
func (s *SingleFileRecorder) RegisterUsage(
	dc *model.DetectedComponent,
	isExplicit bool,
	parentID string,
	isDevelopment *bool,
) (*model.DetectedComponent, error) {
	if dc == nil {
		return nil, errors.Errorf("%w: nil component", ErrInvalidComponent)
	}

	if dc.Component.Name == "" || dc.Component.Type == "" {
		return nil, errors.Errorf("%w: component type and name are required", ErrInvalidComponent)
	}

	id := dc.Component.ID()
	if parentID == id {
		return nil, errors.Errorf("%w: %s cannot depend on itself", ErrInvalidComponent, id)
	}

	stored, loaded := s.components.LoadOrStore(id, dc)
	if loaded && stored != dc {
		s.mu.Lock()
		for containerID := range dc.ContainerDetailIDs {
			stored.AddContainerDetailID(containerID, dc.ContainerLayerIDs[containerID]...)
		}
		s.mu.Unlock()
	}

	s.graph.addComponent(id, parentID, isExplicit, isDevelopment)

	return stored, nil
}

// Component returns the canonical record registered for id at this location.
func (s *SingleFileRecorder) Component(id string) (*model.DetectedComponent, bool) {
	return s.components.Load(id)
}

// AddAdditionalRelatedFile records another file that contributed to this location.
func (s *SingleFileRecorder) AddAdditionalRelatedFile(path string) {
	s.graph.AddAdditionalRelatedFile(path)
}

func (s *SingleFileRecorder) snapshot() []*model.DetectedComponent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.DetectedComponent

	s.components.Range(func(_ string, dc *model.DetectedComponent) bool {
		out = append(out, dc.Clone())
		return true
	})

	return out
}
