// Package detectors contains the built-in C/C++ package manager detectors.
package detectors

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// All returns every built-in detector, ordered by ID.
func All() []detector.Detector {
	return []detector.Detector{
		NewCMakeDetector(),
		NewCompileCommandsDetector(),
		NewConanDetector(),
		NewLinkerMapDetector(),
		NewMesonDetector(),
		NewVcpkgDetector(),
	}
}

// usage is one parsed sighting, recorded only once the whole file parsed.
type usage struct {
	component model.Component
	parentID  string
	dev       *bool
	explicit  bool
}

// usages collects the sightings of one file in parse order.
type usages []usage

func (u *usages) add(c model.Component, explicit bool, parentID string, dev *bool) {
	*u = append(*u, usage{component: c, explicit: explicit, parentID: parentID, dev: dev})
}

// commit validates every sighting and then records them all. A file either
// contributes all of its sightings or none.
func commit(recorder func() *depgraph.SingleFileRecorder, found usages) error {
	if len(found) == 0 {
		return nil
	}

	for _, u := range found {
		if u.component.Name == "" {
			return errors.Errorf("%w: component without a name", depgraph.ErrInvalidComponent)
		}

		if u.parentID == u.component.ID() {
			return errors.Errorf("%w: %s cannot depend on itself", depgraph.ErrInvalidComponent, u.parentID)
		}
	}

	target := recorder()

	for _, u := range found {
		if _, err := target.RegisterUsage(model.NewDetectedComponent(u.component), u.explicit, u.parentID, u.dev); err != nil {
			return err
		}
	}

	return nil
}

// siblingRecorder returns a function yielding the recorder of the first
// sibling manifest of path that exists, marking path as a related file of it.
// Without a sibling the file's own recorder is used. Nothing is created until
// the function is called.
func siblingRecorder(req *detector.FileRequest, manifests ...string) func() *depgraph.SingleFileRecorder {
	return func() *depgraph.SingleFileRecorder {
		dir := filepath.Dir(req.Path)

		for _, name := range manifests {
			candidate := filepath.Join(dir, name)

			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}

			recorder := req.ComponentRecorder.CreateSingleFileComponentRecorder(candidate)
			recorder.AddAdditionalRelatedFile(req.Path)

			return recorder
		}

		return req.Recorder()
	}
}

// isExternalPath reports whether p is an absolute path outside root. Paths
// starting with a drive letter are absolute on every platform.
func isExternalPath(p, root string) bool {
	p = normalizeSlashes(p)
	if !strings.HasPrefix(p, "/") && !hasDriveLetter(p) {
		return false
	}

	if root == "" {
		return true
	}

	p = strings.ToLower(path.Clean(p))
	r := strings.ToLower(path.Clean(normalizeSlashes(root)))

	return p != r && !strings.HasPrefix(p, strings.TrimSuffix(r, "/")+"/")
}

func hasDriveLetter(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}

	c := p[0] | 0x20

	return c >= 'a' && c <= 'z'
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
