package detectors

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/fingerprints"
	"github.com/StinkyLord/depscan/internal/model"
)

// LinkerMapDetectorID identifies the linker map detector.
const LinkerMapDetectorID = "linkermap"

// reMapLibEntry matches library paths on LOAD lines of GNU maps and at the start
// of a line. Cross-compile maps mix separators: "LOAD c:/path/to/nofp\libgcc.a".
var reMapLibEntry = regexp.MustCompile(`(?i)(?:LOAD\s+|^\s*)([A-Za-z]:[\\/][^\s]+\.(?:lib|a|so(?:\.\d+)*)|/[^\s]+\.(?:lib|a|so(?:\.\d+)*))`)

// reMSVCLibLine matches .lib references in MSVC map files.
var reMSVCLibLine = regexp.MustCompile(`(?i)([A-Za-z]:[\\/][^\s"]+\.lib|[^\s"]+\.lib)`)

// reSatisfyEntry matches an entry of the GNU ld "Archive member included to
// satisfy reference" section: the library that was pulled in, the member and
// the requester. The requester sits on the next line when the path is long, as
// written by the ARM toolchain:
//
//	c:/path/to\libgcc.a(_arm_addsubsf3.o)
//	                              build/main.o (__aeabi_fsub)
var reSatisfyEntry = regexp.MustCompile(`(?i)^([A-Za-z]:[\\/][^\s(]+\.(?:lib|a|so(?:\.\d+)*)|/[^\s(]+\.(?:lib|a|so(?:\.\d+)*))(?:\([^)]*\))?(?:\s+(.*))?$`)

// reRequester extracts the requesting file of a satisfy entry; the older
// format wraps it in parentheses: "(libssl.so.3(deflate))".
var reRequester = regexp.MustCompile(`^\(?([^\s(]+)`)

var reLibFile = regexp.MustCompile(`(?i)\.(?:lib|a|so(?:\.\d+)*)$`)

// NewLinkerMapDetector detects linked third-party libraries from linker map
// files written by GNU ld (-Map) or MSVC (/MAP). Libraries pulled in to satisfy
// another library's references become edges. It is experimental.
func NewLinkerMapDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta:           detector.Info{ID: LinkerMapDetectorID, Version: 1, Experimental: true},
		SearchPatterns: []string{"*.map"},
		Process:        processLinkerMap,
	}
}

func processLinkerMap(_ context.Context, req *detector.FileRequest) error {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	req.Logger.Debug("Parsing linker map")

	found, err := parseLinkerMap(data, req.SourceDirectory)
	if err != nil {
		return err
	}

	return commit(req.Recorder, found)
}

type linkEdge struct {
	parent string
	child  string
}

// linkerMap is what a map file says about external libraries.
type linkerMap struct {
	libs  map[string]bool
	edges []linkEdge
	root  string

	inSatisfy bool
	// waiting is set after a satisfy entry whose requester is on the next line.
	waiting bool
	// child is the external library of that entry, or "".
	child string
}

func (m *linkerMap) addLib(libPath string) bool {
	if !reLibFile.MatchString(libPath) || !isExternalPath(libPath, m.root) {
		return false
	}

	m.libs[normalizeSlashes(libPath)] = true

	return true
}

func parseLinkerMap(data []byte, root string) (usages, error) {
	m := &linkerMap{libs: map[string]bool{}, root: root}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := sc.Text()

		if strings.Contains(line, "Archive member included") && strings.Contains(line, "satisfy") {
			m.inSatisfy = true
			m.waiting = false

			continue
		}

		if m.inSatisfy {
			m.satisfyLine(strings.TrimSpace(line))
		}

		if lm := reMapLibEntry.FindStringSubmatch(line); lm != nil {
			m.addLib(lm[1])
		}

		for _, lm := range reMSVCLibLine.FindAllStringSubmatch(line, -1) {
			m.addLib(lm[1])
		}
	}

	if err := sc.Err(); err != nil {
		return nil, errors.New(err)
	}

	return m.usages(), nil
}

// satisfyLine consumes one line of the satisfy-reference section and leaves
// the section on the first line that is not part of an entry.
func (m *linkerMap) satisfyLine(trimmed string) {
	if trimmed == "" {
		return
	}

	if m.waiting {
		m.waiting = false
		m.requester(trimmed)

		return
	}

	em := reSatisfyEntry.FindStringSubmatch(trimmed)
	if em == nil {
		m.inSatisfy = false
		return
	}

	m.child = ""
	if m.addLib(em[1]) {
		m.child = normalizeSlashes(em[1])
	}

	if strings.TrimSpace(em[2]) == "" {
		m.waiting = true
		return
	}

	m.requester(em[2])
}

// requester records the edge from the library that needed m.child. Project
// object files are not libraries and give no edge.
func (m *linkerMap) requester(text string) {
	rm := reRequester.FindStringSubmatch(strings.TrimSpace(text))
	if rm == nil || m.child == "" {
		return
	}

	if m.addLib(rm[1]) {
		m.edges = append(m.edges, linkEdge{parent: normalizeSlashes(rm[1]), child: m.child})
	}
}

// usages maps library paths to components. Libraries that no other library
// pulled in are the ones the project linked directly.
func (m *linkerMap) usages() usages {
	paths := make([]string, 0, len(m.libs))
	for p := range m.libs {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	byName := map[string]model.Component{}
	byPath := map[string]string{}

	for _, p := range paths {
		c, ok := libraryFileComponent(p)
		if !ok {
			continue
		}

		byPath[p] = c.Name
		keepVersioned(byName, c)
	}

	pulledIn := map[string]bool{}
	edges := map[linkEdge]bool{}

	for _, e := range m.edges {
		parent, child := byPath[e.parent], byPath[e.child]
		if parent == "" || child == "" || parent == child {
			continue
		}

		pulledIn[child] = true
		edges[linkEdge{parent: parent, child: child}] = true
	}

	var found usages

	for _, name := range sortedKeys(byName) {
		found.add(byName[name], !pulledIn[name], "", nil)
	}

	sorted := make([]linkEdge, 0, len(edges))
	for e := range edges {
		sorted = append(sorted, e)
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].parent != sorted[j].parent {
			return sorted[i].parent < sorted[j].parent
		}

		return sorted[i].child < sorted[j].child
	})

	for _, e := range sorted {
		found.add(byName[e.child], false, byName[e.parent].ID(), nil)
	}

	return found
}

// libraryFileComponent returns the component of a linked library file, with
// the version from its decorated name or its directory.
func libraryFileComponent(p string) (model.Component, bool) {
	lib, ok := fingerprints.FromLibraryFile(p)
	if !ok {
		return model.Component{}, false
	}

	version := fingerprints.VersionFromLibraryFile(p)
	if version == "" {
		if dirLib, v, ok := fingerprints.FromPath(path.Dir(normalizeSlashes(p))); ok && dirLib.Name == lib.Name {
			version = v
		}
	}

	return model.NewComponent(model.ComponentTypeGeneric, lib.Name, version), true
}

// keepVersioned stores c under its name unless a component with a known
// version is already stored.
func keepVersioned(byName map[string]model.Component, c model.Component) {
	if existing, ok := byName[c.Name]; ok && (existing.Version != "unknown" || c.Version == "unknown") {
		return
	}

	byName[c.Name] = c
}
