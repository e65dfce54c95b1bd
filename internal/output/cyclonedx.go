// Package output provides scan result serializers.
package output

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"

	"github.com/StinkyLord/depscan/internal/model"
)

// ---- CycloneDX 1.4 JSON schema types ----

type cdxBOM struct {
	BOMFormat      string               `json:"bomFormat"`
	SpecVersion    string               `json:"specVersion"`
	Version        int                  `json:"version"`
	SerialNumber   string               `json:"serialNumber"`
	Metadata       cdxMetadata          `json:"metadata"`
	Components     []cdxComponent       `json:"components"`
	Dependencies   []cdxDependency      `json:"dependencies,omitempty"`
	DependencyTree []model.LocationTree `json:"x-dependencyTree,omitempty"`
}

type cdxMetadata struct {
	Timestamp string    `json:"timestamp"`
	Tools     []cdxTool `json:"tools"`
}

type cdxTool struct {
	Vendor  string `json:"vendor"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type cdxComponent struct {
	BOMRef     string        `json:"bom-ref"`
	Type       string        `json:"type"`
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	PURL       string        `json:"purl,omitempty"`
	Scope      string        `json:"scope,omitempty"`
	Properties []cdxProperty `json:"properties,omitempty"`
}

type cdxProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// cdxDependency represents one node in the CycloneDX dependency graph.
// "ref" is the bom-ref of the component; "dependsOn" lists the bom-refs of its children.
type cdxDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn"`
}

// WriteCycloneDX serialises the scan result as a CycloneDX 1.4 JSON SBOM and
// writes it to the given output path. If outputPath is "-", it writes to stdout.
func WriteCycloneDX(result *model.ScanResult, outputPath string, toolVersion string) error {
	return writeJSON(outputPath, buildCycloneDX(result, toolVersion))
}

// cdxEntry folds every ScannedComponent with the same component ID into one
// BOM component.
type cdxEntry struct {
	component   model.Component
	detectors   map[string]struct{}
	locations   map[string]struct{}
	direct      bool
	development *bool
}

func buildCycloneDX(result *model.ScanResult, toolVersion string) cdxBOM {
	entries := map[string]*cdxEntry{}

	for _, sc := range result.ComponentsFound {
		id := sc.Component.ID()

		entry, ok := entries[id]
		if !ok {
			entry = &cdxEntry{
				component: sc.Component,
				detectors: map[string]struct{}{},
				locations: map[string]struct{}{},
			}
			entries[id] = entry
		}

		entry.detectors[sc.DetectorID] = struct{}{}
		entry.development = model.MergeDevelopmentDependency(entry.development, sc.IsDevelopmentDependency)

		for _, location := range sc.LocationsFoundAt {
			entry.locations[location] = struct{}{}
		}

		for _, referrer := range sc.TopLevelReferrers {
			if referrer.ID() == id {
				entry.direct = true
			}
		}
	}

	comps := make([]*cdxEntry, 0, len(entries))
	for _, entry := range entries {
		comps = append(comps, entry)
	}

	// Sort by name, then by version, for deterministic output
	sort.Slice(comps, func(i, j int) bool {
		return componentLess(comps[i].component, comps[j].component)
	})

	cdxComps := make([]cdxComponent, 0, len(comps))

	for _, entry := range comps {
		c := entry.component

		comp := cdxComponent{
			BOMRef:  c.ID(),
			Type:    "library",
			Name:    c.Name,
			Version: c.Version,
			PURL:    c.PURL(),
		}

		if entry.development != nil && *entry.development {
			comp.Scope = "optional"
		}

		depType := "transitive"
		if entry.direct {
			depType = "direct"
		}

		comp.Properties = append(comp.Properties, cdxProperty{
			Name:  "sbom:dependencyType",
			Value: depType,
		})

		// Conan-specific: revision and channel
		if c.Revision != "" {
			comp.Properties = append(comp.Properties, cdxProperty{
				Name:  "sbom:conan:revision",
				Value: c.Revision,
			})
		}

		if c.Channel != "" && c.Channel != "_/_" {
			comp.Properties = append(comp.Properties, cdxProperty{
				Name:  "sbom:conan:channel",
				Value: c.Channel,
			})
		}

		for _, detectorID := range sortedSet(entry.detectors) {
			comp.Properties = append(comp.Properties, cdxProperty{
				Name:  "sbom:detectionSource",
				Value: detectorID,
			})
		}

		for _, location := range sortedSet(entry.locations) {
			comp.Properties = append(comp.Properties, cdxProperty{
				Name:  "sbom:location",
				Value: location,
			})
		}

		cdxComps = append(cdxComps, comp)
	}

	return cdxBOM{
		BOMFormat:    "CycloneDX",
		SpecVersion:  "1.4",
		Version:      1,
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Metadata: cdxMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Tools: []cdxTool{
				{
					Vendor:  "StinkyLord",
					Name:    "depscan",
					Version: toolVersion,
				},
			},
		},
		Components:     cdxComps,
		Dependencies:   buildDependencies(result.DependencyGraphs, entries),
		DependencyTree: model.BuildDependencyTrees(result.DependencyGraphs, componentsByID(result)),
	}
}

// buildDependencies unions the edges of every location graph. Edges to
// components that are not part of the BOM are left out.
func buildDependencies(graphs model.DependencyGraphCollection, entries map[string]*cdxEntry) []cdxDependency {
	edges := map[string]map[string]struct{}{}

	for _, graph := range graphs {
		for id, children := range graph.Graph {
			if _, ok := entries[id]; !ok {
				continue
			}

			if edges[id] == nil {
				edges[id] = map[string]struct{}{}
			}

			for _, child := range children {
				if _, ok := entries[child]; ok {
					edges[id][child] = struct{}{}
				}
			}
		}
	}

	deps := make([]cdxDependency, 0, len(edges))
	for _, id := range sortedSet(edges) {
		deps = append(deps, cdxDependency{
			Ref:       id,
			DependsOn: sortedSet(edges[id]),
		})
	}

	return deps
}

func componentsByID(result *model.ScanResult) map[string]model.Component {
	components := make(map[string]model.Component, len(result.ComponentsFound))
	for _, sc := range result.ComponentsFound {
		components[sc.Component.ID()] = sc.Component
	}

	return components
}

// componentLess orders by name, then by semantic version when both versions
// parse, then by ID.
func componentLess(a, b model.Component) bool {
	if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
		return an < bn
	}

	av, aErr := version.NewVersion(a.Version)
	bv, bErr := version.NewVersion(b.Version)

	if aErr == nil && bErr == nil && !av.Equal(bv) {
		return av.LessThan(bv)
	}

	return a.ID() < b.ID()
}

func sortedSet[V any](set map[string]V) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
