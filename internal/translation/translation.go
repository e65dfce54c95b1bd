// Package translation turns the component recorders filled by detectors into
// the final, deduplicated scan result.
//
// Translation runs in two phases. Collect reads every recorder and produces one
// flat DetectedComponent per (detector, component) with its roots, development
// flag and root relative file paths. Reduce groups those records by component
// and detector and folds each group into a single ScannedComponent. Recorders
// are only read; all mutation happens on copies.
package translation

import (
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/scanner"
)

// Service builds scan results.
type Service struct {
	logger logrus.FieldLogger
}

// NewService returns a translation service logging to logger, or to the
// standard logger when nil.
func NewService(logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{logger: logger}
}

// GenerateScanResult converts the engine output into a ScanResult.
func (s *Service) GenerateScanResult(processing *scanner.ProcessingResult, sourceDirectory string) *model.ScanResult {
	records := s.Collect(processing.ComponentRecorders, sourceDirectory)

	containers := processing.ContainerDetails
	if containers == nil {
		containers = map[int]*model.ContainerDetails{}
	}

	return &model.ScanResult{
		SourceDirectory:     sourceDirectory,
		ResultCode:          processing.ResultCode,
		ComponentsFound:     Reduce(records),
		ContainerDetailsMap: containers,
		DependencyGraphs:    AccumulateGraphs(processing.ComponentRecorders),
		DetectorsInRun:      processing.DetectorsInRun,
	}
}

// Collect flattens every recorder into one record per (detector, component).
// File paths are recomputed from the graphs; whatever the recorder stored on
// the component beforehand is discarded.
func (s *Service) Collect(pairs []scanner.DetectorRecorder, sourceDirectory string) []*model.DetectedComponent {
	var records []*model.DetectedComponent

	for _, pair := range pairs {
		if pair.Recorder == nil {
			continue
		}

		logger := s.logger.WithField("detector", pair.Detector.ID)
		graphs := pair.Recorder.DependencyGraphsByLocation()
		locations := sortedLocations(graphs)

		for _, dc := range pair.Recorder.DetectedComponents() {
			id := dc.Component.ID()
			dc.FilePaths = map[string]struct{}{}
			dc.DetectedBy = pair.Detector.ID

			for _, location := range locations {
				graph := graphs[location]
				if !graph.Contains(id) {
					continue
				}

				rootIDs, err := graph.ExplicitReferencedDependencyIDs(id)
				if err != nil {
					logger.Debugf("Could not compute roots of %s at %s: %v", id, location, err)
				}

				for _, rootID := range rootIDs {
					root, ok := pair.Recorder.Component(rootID)
					if !ok {
						logger.Debugf("Root %s of %s is not a registered component, skipping", rootID, id)
						continue
					}

					dc.AddDependencyRoot(root)
				}

				dc.DevelopmentDependency = model.MergeDevelopmentDependency(
					dc.DevelopmentDependency,
					graph.IsDevelopmentDependency(id),
				)

				files := append(graph.AdditionalRelatedFiles(), location)
				for _, file := range files {
					relative, ok := relativePath(sourceDirectory, file)
					if !ok {
						logger.Debugf("Path %s is outside of %s, dropping it", file, sourceDirectory)
						continue
					}

					dc.AddComponentFilePath(relative)
				}
			}

			records = append(records, dc)
		}
	}

	return records
}

type mergeKey struct {
	componentID string
	detectorID  string
}

// Reduce groups records by (component, detector), merges every group and
// converts it to the output contract. The merge is a union of paths, roots and
// containers plus the conjunctive development flag, so the order of records
// within a group does not matter. Output is sorted by component ID, then
// detector ID.
func Reduce(records []*model.DetectedComponent) []model.ScannedComponent {
	groups := map[mergeKey]*model.DetectedComponent{}

	for _, record := range records {
		key := mergeKey{componentID: record.Component.ID(), detectorID: record.DetectedBy}

		merged, ok := groups[key]
		if !ok {
			groups[key] = record.Clone()
			continue
		}

		merge(merged, record)
	}

	keys := make([]mergeKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].componentID != keys[j].componentID {
			return keys[i].componentID < keys[j].componentID
		}

		return keys[i].detectorID < keys[j].detectorID
	})

	out := make([]model.ScannedComponent, 0, len(keys))
	for _, key := range keys {
		out = append(out, toScanned(groups[key]))
	}

	return out
}

func merge(into, other *model.DetectedComponent) {
	for path := range other.FilePaths {
		into.AddComponentFilePath(path)
	}

	for _, root := range other.DependencyRoots {
		into.AddDependencyRoot(root)
	}

	for containerID := range other.ContainerDetailIDs {
		into.AddContainerDetailID(containerID, other.ContainerLayerIDs[containerID]...)
	}

	into.DevelopmentDependency = model.MergeDevelopmentDependency(into.DevelopmentDependency, other.DevelopmentDependency)
}

func toScanned(dc *model.DetectedComponent) model.ScannedComponent {
	locations := make([]string, 0, len(dc.FilePaths))
	for path := range dc.FilePaths {
		locations = append(locations, path)
	}

	sort.Strings(locations)

	referrers := make([]model.Component, 0, len(dc.DependencyRoots))
	for _, root := range dc.DependencyRoots {
		referrers = append(referrers, root)
	}

	sort.Slice(referrers, func(i, j int) bool {
		return referrers[i].ID() < referrers[j].ID()
	})

	scanned := model.ScannedComponent{
		Component:               dc.Component,
		DetectorID:              dc.DetectedBy,
		IsDevelopmentDependency: dc.DevelopmentDependency,
		LocationsFoundAt:        locations,
		TopLevelReferrers:       referrers,
	}

	for containerID := range dc.ContainerDetailIDs {
		scanned.ContainerDetailIDs = append(scanned.ContainerDetailIDs, containerID)
	}

	slices.Sort(scanned.ContainerDetailIDs)

	for containerID, layers := range dc.ContainerLayerIDs {
		if len(layers) == 0 {
			continue
		}

		if scanned.ContainerLayerIDs == nil {
			scanned.ContainerLayerIDs = map[int][]int{}
		}

		scanned.ContainerLayerIDs[containerID] = slices.Clone(layers)
	}

	return scanned
}

// relativePath renders file as a forward slash path relative to root with a
// leading "/". Files outside root cannot be expressed and report false. An
// empty root keeps the path as is.
func relativePath(root, file string) (string, bool) {
	if root == "" {
		return filepath.ToSlash(file), true
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", false
	}

	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}

	if rel == "." {
		return "/", true
	}

	return "/" + rel, true
}
