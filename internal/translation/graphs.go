package translation

import (
	"sort"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/scanner"
)

// AccumulateGraphs merges the per-location graphs of every recorder into one
// view keyed by location. When two detectors recorded the same location their
// graphs are unioned; neither overwrites the other.
func AccumulateGraphs(pairs []scanner.DetectorRecorder) model.DependencyGraphCollection {
	type accumulator struct {
		edges       map[string]map[string]struct{}
		explicit    map[string]struct{}
		development map[string]struct{}
		production  map[string]struct{}
	}

	byLocation := map[string]*accumulator{}

	for _, pair := range pairs {
		if pair.Recorder == nil {
			continue
		}

		for location, graph := range pair.Recorder.DependencyGraphsByLocation() {
			acc, ok := byLocation[location]
			if !ok {
				acc = &accumulator{
					edges:       map[string]map[string]struct{}{},
					explicit:    map[string]struct{}{},
					development: map[string]struct{}{},
					production:  map[string]struct{}{},
				}
				byLocation[location] = acc
			}

			accumulate(graph, acc.edges, acc.explicit, acc.development, acc.production)
		}
	}

	collection := make(model.DependencyGraphCollection, len(byLocation))

	for location, acc := range byLocation {
		graph := make(map[string][]string, len(acc.edges))
		for id, deps := range acc.edges {
			graph[id] = sortedSet(deps)
		}

		collection[location] = &model.GraphWithMetadata{
			Graph:                            graph,
			ExplicitlyReferencedComponentIDs: sortedSet(acc.explicit),
			DevelopmentDependencies:          sortedSet(acc.development),
			Dependencies:                     sortedSet(acc.production),
		}
	}

	return collection
}

func accumulate(
	graph *depgraph.DependencyGraph,
	edges map[string]map[string]struct{},
	explicit, development, production map[string]struct{},
) {
	for _, id := range graph.Components() {
		deps, ok := edges[id]
		if !ok {
			deps = map[string]struct{}{}
			edges[id] = deps
		}

		for _, dep := range graph.DependenciesOf(id) {
			deps[dep] = struct{}{}
		}

		if graph.IsExplicit(id) {
			explicit[id] = struct{}{}
		}

		if dev := graph.IsDevelopmentDependency(id); dev != nil {
			if *dev {
				development[id] = struct{}{}
			} else {
				production[id] = struct{}{}
			}
		}
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func sortedLocations(graphs map[string]*depgraph.DependencyGraph) []string {
	locations := make([]string, 0, len(graphs))
	for location := range graphs {
		locations = append(locations, location)
	}

	sort.Strings(locations)

	return locations
}
