package detectors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// VcpkgDetectorID identifies the vcpkg detector.
const VcpkgDetectorID = "vcpkg"

// NewVcpkgDetector detects vcpkg ports from manifests (vcpkg.json), lock files
// (vcpkg-lock.json) and the classic-mode database (installed/vcpkg/status).
func NewVcpkgDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta:           detector.Info{ID: VcpkgDetectorID, Version: 2},
		SearchPatterns: []string{"vcpkg.json", "vcpkg-lock.json", "status"},
		Process:        processVcpkgFile,
	}
}

func processVcpkgFile(_ context.Context, req *detector.FileRequest) error {
	name := strings.ToLower(filepath.Base(req.Path))

	if name == "status" && !isVcpkgStatusFile(req.Path) {
		return nil
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	var found usages

	recorder := req.Recorder

	switch name {
	case "vcpkg.json":
		req.Logger.Debug("Parsing vcpkg.json")
		found, err = parseVcpkgManifest(data)
	case "vcpkg-lock.json":
		req.Logger.Debug("Parsing vcpkg-lock.json")
		recorder = siblingRecorder(req, "vcpkg.json")
		found, err = parseVcpkgLock(data)
	default:
		req.Logger.Debug("Parsing vcpkg status database")
		found, err = parseVcpkgStatus(data)
	}

	if err != nil {
		return err
	}

	return commit(recorder, found)
}

// isVcpkgStatusFile reports whether path is <prefix>/installed/vcpkg/status.
func isVcpkgStatusFile(path string) bool {
	dir := filepath.Dir(path)

	return filepath.Base(dir) == "vcpkg" && filepath.Base(filepath.Dir(dir)) == "installed"
}

type vcpkgDependency struct {
	Name       string `json:"name"`
	MinVersion string `json:"version>="`
	Host       bool   `json:"host"`
}

type vcpkgManifest struct {
	Dependencies []json.RawMessage `json:"dependencies"`
	Overrides    []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"overrides"`
}

// parseVcpkgManifest reports every dependency as explicit. Dependencies may
// be plain port names or objects; host dependencies are tools used during the
// build.
func parseVcpkgManifest(data []byte) (usages, error) {
	var manifest vcpkgManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Errorf("invalid vcpkg.json: %w", err)
	}

	var found usages

	overrides := map[string]string{}
	for _, o := range manifest.Overrides {
		overrides[o.Name] = o.Version
	}

	for _, raw := range manifest.Dependencies {
		var dep vcpkgDependency

		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			dep.Name = name
		} else if err := json.Unmarshal(raw, &dep); err != nil {
			return nil, errors.Errorf("invalid dependency %s in vcpkg.json: %w", string(raw), err)
		}

		if dep.Name == "" {
			return nil, errors.Errorf("dependency without a name in vcpkg.json")
		}

		version := dep.MinVersion
		if v, ok := overrides[dep.Name]; ok {
			version = v
		}

		found.add(model.NewComponent(model.ComponentTypeVcpkg, dep.Name, version), true, "", model.Bool(dep.Host))
	}

	return found, nil
}

type vcpkgLockPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// parseVcpkgLock reads the locked ports. Two layouts exist: a map under
// "packages" keyed by "port:triplet", and a flat array.
func parseVcpkgLock(data []byte) (usages, error) {
	var found usages

	var lock struct {
		Packages map[string]vcpkgLockPackage `json:"packages"`
	}

	if err := json.Unmarshal(data, &lock); err == nil && len(lock.Packages) > 0 {
		for _, key := range sortedKeys(lock.Packages) {
			name, _, _ := strings.Cut(key, ":")
			if name == "" {
				continue
			}

			found.add(model.NewComponent(model.ComponentTypeVcpkg, name, lock.Packages[key].Version), false, "", nil)
		}

		return found, nil
	}

	var packages []vcpkgLockPackage
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, errors.Errorf("invalid vcpkg-lock.json: %w", err)
	}

	for _, pkg := range packages {
		if pkg.Name == "" {
			continue
		}

		found.add(model.NewComponent(model.ComponentTypeVcpkg, pkg.Name, pkg.Version), false, "", nil)
	}

	return found, nil
}

type vcpkgStatusEntry struct {
	name      string
	version   string
	depends   []string
	installed bool
	feature   bool
}

// recordVcpkgStatus reads the dpkg-style database written by classic mode:
//
//	Package: boost-system
//	Version: 1.82.0
//	Depends: boost-config, boost-core
//	Architecture: x64-windows
//	Status: install ok installed
//
// Ports no other installed port depends on were installed by the user and are
// recorded as explicit.
func parseVcpkgStatus(data []byte) (usages, error) {
	var entries []*vcpkgStatusEntry

	current := &vcpkgStatusEntry{}

	flush := func() {
		if current.installed && current.name != "" && !current.feature {
			entries = append(entries, current)
		}

		current = &vcpkgStatusEntry{}
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)

		switch key {
		case "Package":
			current.name, _, _ = strings.Cut(value, ":")
		case "Version":
			current.version = value
		case "Feature":
			current.feature = true
		case "Depends":
			for _, dep := range strings.Split(value, ",") {
				dep = strings.TrimSpace(dep)
				// "zlib:x64-windows" or "zlib (windows)"
				dep, _, _ = strings.Cut(dep, ":")
				dep, _, _ = strings.Cut(dep, " ")

				if dep != "" {
					current.depends = append(current.depends, dep)
				}
			}
		case "Status":
			current.installed = strings.HasSuffix(value, " installed")
		}
	}

	flush()

	if err := sc.Err(); err != nil {
		return nil, errors.New(err)
	}

	var found usages

	byName := map[string]model.Component{}
	dependedOn := map[string]bool{}

	for _, e := range entries {
		byName[e.name] = model.NewComponent(model.ComponentTypeVcpkg, e.name, e.version)

		for _, dep := range e.depends {
			dependedOn[dep] = true
		}
	}

	for _, name := range sortedKeys(byName) {
		found.add(byName[name], !dependedOn[name], "", nil)
	}

	for _, e := range entries {
		parentID := byName[e.name].ID()

		for _, dep := range e.depends {
			child, ok := byName[dep]
			if !ok || dep == e.name {
				continue
			}

			found.add(child, false, parentID, nil)
		}
	}

	return found, nil
}
