// Package depgraph holds the per-location dependency graphs detectors populate
// and the component recorder that owns them for the duration of one detector run.
package depgraph

import (
	"sort"
	"sync"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// ErrComponentNotFound is returned when a graph query names an unknown component.
var ErrComponentNotFound = errors.Errorf("component is not part of the dependency graph")

type componentNode struct {
	explicit     bool
	development  *bool
	dependsOn    map[string]struct{}
	dependedOnBy map[string]struct{}
}

func newComponentNode() *componentNode {
	return &componentNode{
		dependsOn:    map[string]struct{}{},
		dependedOnBy: map[string]struct{}{},
	}
}

// DependencyGraph records what was found at a single scanned location: the
// components, "is a dependency of" edges, explicit references and the
// development-dependency flag of every component.
//
// Every ID appearing in an edge is a node of the graph, and the explicit set is
// a subset of the nodes.
type DependencyGraph struct {
	mu                     sync.RWMutex
	nodes                  map[string]*componentNode
	additionalRelatedFiles map[string]struct{}
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:                  map[string]*componentNode{},
		additionalRelatedFiles: map[string]struct{}{},
	}
}

// addComponent inserts id (and parentID when non-empty) and the parent -> id edge.
func (g *DependencyGraph) addComponent(id, parentID string, explicit bool, development *bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.nodeLocked(id)

	if explicit {
		node.explicit = true
	}

	if development != nil {
		node.development = model.MergeDevelopmentDependency(node.development, development)
	}

	if parentID == "" {
		return
	}

	parent := g.nodeLocked(parentID)
	parent.dependsOn[id] = struct{}{}
	node.dependedOnBy[parentID] = struct{}{}
}

func (g *DependencyGraph) nodeLocked(id string) *componentNode {
	node, ok := g.nodes[id]
	if !ok {
		node = newComponentNode()
		g.nodes[id] = node
	}

	return node
}

// Contains reports whether the component was seen at this location.
func (g *DependencyGraph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[id]

	return ok
}

// Components returns the IDs of every component in the graph, sorted.
func (g *DependencyGraph) Components() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// DependenciesOf returns the sorted IDs the component depends on directly.
func (g *DependencyGraph) DependenciesOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil
	}

	return sortedKeys(node.dependsOn)
}

// IsExplicit reports whether the manifest at this location references the component directly.
func (g *DependencyGraph) IsExplicit(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]

	return ok && node.explicit
}

// IsDevelopmentDependency returns the tri-state development flag recorded for
// the component at this location; nil means unknown.
func (g *DependencyGraph) IsDevelopmentDependency(id string) *bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok || node.development == nil {
		return nil
	}

	dev := *node.development

	return &dev
}

// ExplicitReferencedDependencyIDs returns the explicitly referenced components
// that transitively pull in id within this graph. A component that no explicit
// component leads to is its own root.
func (g *DependencyGraph) ExplicitReferencedDependencyIDs(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, errors.Errorf("%w: %s", ErrComponentNotFound, id)
	}

	roots := map[string]struct{}{}
	visited := map[string]struct{}{id: {}}
	stack := []string{id}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := g.nodes[current]
		if node.explicit {
			roots[current] = struct{}{}
		}

		for parent := range node.dependedOnBy {
			if _, seen := visited[parent]; seen {
				continue
			}

			visited[parent] = struct{}{}
			stack = append(stack, parent)
		}
	}

	if len(roots) == 0 {
		return []string{id}, nil
	}

	return sortedKeys(roots), nil
}

// AddAdditionalRelatedFile records a file that contributed evidence to this
// location, e.g. a lockfile read alongside the manifest.
func (g *DependencyGraph) AddAdditionalRelatedFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.additionalRelatedFiles[path] = struct{}{}
}

// AdditionalRelatedFiles returns the related files, sorted.
func (g *DependencyGraph) AdditionalRelatedFiles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return sortedKeys(g.additionalRelatedFiles)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
