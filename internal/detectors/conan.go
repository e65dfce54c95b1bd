package detectors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// ConanDetectorID identifies the Conan detector and prefixes its arguments.
const ConanDetectorID = "conan"

// conanRootNode is the consumer (the scanned project) in lock and graph files.
const conanRootNode = "0"

// ConanOptions are set with detector arguments, e.g. conan.IncludeBuildRequires=false.
type ConanOptions struct {
	// IncludeBuildRequires records build and tool requirements as development dependencies.
	IncludeBuildRequires bool
}

// reConanRef matches "name/version[@user/channel][#revision]".
var reConanRef = regexp.MustCompile(`^([A-Za-z0-9_\-\.+]+)/([A-Za-z0-9_\-\.+]+)(@[^\s#]*)?(?:#([A-Za-z0-9\-_]+))?$`)

// reConanfileTxtRequires matches a requirement line of a conanfile.txt section.
var reConanfileTxtRequires = regexp.MustCompile(`^\s*([A-Za-z0-9_\-\.+]+)/([A-Za-z0-9_\-\.+]+)(@[^\s#]*)?(?:#([A-Za-z0-9\-_]+))?`)

// reConanRange matches "name/[>=1.80 <2.0][@user/channel]", a requirement
// resolved at install time.
var reConanRange = regexp.MustCompile(`^\s*([A-Za-z0-9_\-\.+]+)/\[[^\]]*\](@[^\s#]*)?`)

// reConanfilePyCall matches self.requires("...") style calls; group 1 is the method.
var reConanfilePyCall = regexp.MustCompile(`self\.(requires|build_requires|tool_requires|test_requires)\s*\(\s*["']([^"']+)["']`)

// reConanfilePyAttr matches class attributes: a string, a tuple or a list that may span lines.
var reConanfilePyAttr = regexp.MustCompile(`(?m)^\s*(requires|build_requires|tool_requires|test_requires|python_requires)\s*=\s*(\[[^\]]*\]|\([^\)]*\)|["'][^"'\n]*["'](?:\s*,\s*["'][^"'\n]*["'])*)`)

var reQuoted = regexp.MustCompile(`["']([^"']+)["']`)

// NewConanDetector detects Conan requirements from conanfile.txt, conanfile.py,
// conan.lock (v1 and v2) and the JSON written by `conan graph info --format=json`.
func NewConanDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta: detector.Info{ID: ConanDetectorID, Version: 2},
		SearchPatterns: []string{
			"conanfile.txt",
			"conanfile.py",
			"conan.lock",
			"conan-graph.json",
			"graph.json",
		},
		Process: processConanFile,
	}
}

func processConanFile(_ context.Context, req *detector.FileRequest) error {
	opts := ConanOptions{IncludeBuildRequires: true}
	if err := detector.DecodeArgs(req.Args, ConanDetectorID, &opts); err != nil {
		return err
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	var found usages

	recorder := req.Recorder

	switch strings.ToLower(filepath.Base(req.Path)) {
	case "conanfile.txt":
		req.Logger.Debug("Parsing conanfile.txt")
		found, err = parseConanfileTxt(data, opts)
	case "conanfile.py":
		req.Logger.Debug("Parsing conanfile.py")
		found = parseConanfilePy(data, opts)
	case "conan.lock":
		req.Logger.Debug("Parsing conan.lock")
		recorder = siblingRecorder(req, "conanfile.txt", "conanfile.py")
		found, err = parseConanLock(data, opts)
	default:
		found, err = parseConanGraph(req, data, opts)
	}

	if err != nil {
		return err
	}

	return commit(recorder, found)
}

// parseConanRef parses a full reference. Lock files in the v2 format append
// "%timestamp" to the revision, which is dropped.
func parseConanRef(ref string) (model.Component, bool) {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, '%'); i >= 0 {
		ref = ref[:i]
	}

	m := reConanRef.FindStringSubmatch(ref)
	if m == nil {
		return model.Component{}, false
	}

	return newConanComponent(m[1], m[2], m[3], m[4]), true
}

// parseConanRequirement parses a pinned reference or a version range. A range
// gives a component without a version.
func parseConanRequirement(ref string) (model.Component, bool) {
	if c, ok := parseConanRef(ref); ok {
		return c, true
	}

	if m := reConanRange.FindStringSubmatch(ref); m != nil {
		return newConanComponent(m[1], "", m[2], ""), true
	}

	return model.Component{}, false
}

func newConanComponent(name, version, channel, revision string) model.Component {
	c := model.NewComponent(model.ComponentTypeConan, name, version)
	c.Channel = strings.TrimPrefix(channel, "@")
	c.Revision = revision

	return c
}

func isConanBuildSection(kind string) bool {
	switch kind {
	case "build_requires", "tool_requires", "test_requires", "python_requires":
		return true
	default:
		return false
	}
}

func parseConanfileTxt(data []byte, opts ConanOptions) (usages, error) {
	var found usages

	section := ""

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			section = strings.ToLower(strings.Trim(line, "[]"))
			continue
		}

		if section != "requires" && !isConanBuildSection(section) {
			continue
		}

		dev := isConanBuildSection(section)
		if dev && !opts.IncludeBuildRequires {
			continue
		}

		var c model.Component

		if m := reConanfileTxtRequires.FindStringSubmatch(line); m != nil {
			c = newConanComponent(m[1], m[2], m[3], m[4])
		} else if m := reConanRange.FindStringSubmatch(line); m != nil {
			c = newConanComponent(m[1], "", m[2], "")
		} else {
			return nil, errors.Errorf("malformed requirement %q in [%s]", line, section)
		}

		found.add(c, true, "", model.Bool(dev))
	}

	if err := sc.Err(); err != nil {
		return nil, errors.New(err)
	}

	return found, nil
}

func parseConanfilePy(data []byte, opts ConanOptions) usages {
	var found usages

	content := string(data)

	type requirement struct {
		ref string
		dev bool
	}

	var reqs []requirement

	for _, m := range reConanfilePyCall.FindAllStringSubmatch(content, -1) {
		reqs = append(reqs, requirement{ref: m[2], dev: m[1] != "requires"})
	}

	for _, m := range reConanfilePyAttr.FindAllStringSubmatch(content, -1) {
		for _, q := range reQuoted.FindAllStringSubmatch(m[2], -1) {
			reqs = append(reqs, requirement{ref: q[1], dev: isConanBuildSection(m[1])})
		}
	}

	for _, r := range reqs {
		if r.dev && !opts.IncludeBuildRequires {
			continue
		}

		// References built from variables, e.g. f"boost/{v}", keep only the name.
		c, ok := parseConanRequirement(r.ref)
		if !ok {
			name, _, cut := strings.Cut(r.ref, "/")
			if !cut || name == "" {
				continue
			}

			c = model.NewComponent(model.ComponentTypeConan, name, "")
		}

		found.add(c, true, "", model.Bool(r.dev))
	}

	return found
}

type conanLockV1 struct {
	GraphLock struct {
		Nodes map[string]conanLockV1Node `json:"nodes"`
	} `json:"graph_lock"`
}

type conanLockV1Node struct {
	Ref           string   `json:"ref"`
	Requires      []string `json:"requires"`
	BuildRequires []string `json:"build_requires"`
}

type conanLockV2 struct {
	Requires       []string `json:"requires"`
	BuildRequires  []string `json:"build_requires"`
	PythonRequires []string `json:"python_requires"`
}

func parseConanLock(data []byte, opts ConanOptions) (usages, error) {
	var v1 conanLockV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil, errors.Errorf("invalid conan.lock: %w", err)
	}

	if len(v1.GraphLock.Nodes) > 0 {
		return parseConanLockV1(v1.GraphLock.Nodes, opts), nil
	}

	var v2 conanLockV2
	if err := json.Unmarshal(data, &v2); err != nil {
		return nil, errors.Errorf("invalid conan.lock: %w", err)
	}

	var found usages

	groups := []struct {
		refs []string
		dev  bool
	}{
		{refs: v2.Requires},
		{refs: v2.BuildRequires, dev: true},
		{refs: v2.PythonRequires, dev: true},
	}

	for _, group := range groups {
		if group.dev && !opts.IncludeBuildRequires {
			continue
		}

		for _, ref := range group.refs {
			c, ok := parseConanRef(ref)
			if !ok {
				return nil, errors.Errorf("malformed reference %q in conan.lock", ref)
			}

			found.add(c, false, "", model.Bool(group.dev))
		}
	}

	return found, nil
}

// recordConanLockV1 walks the lock graph from the consumer node. Packages
// reachable through requires only are runtime dependencies; the rest are only
// needed to build.
func parseConanLockV1(nodes map[string]conanLockV1Node, opts ConanOptions) usages {
	var found usages

	components := map[string]model.Component{}

	for idx, node := range nodes {
		if idx == conanRootNode {
			continue
		}

		if c, ok := parseConanRef(node.Ref); ok {
			components[idx] = c
		}
	}

	children := func(node conanLockV1Node, withBuild bool) []string {
		out := make([]string, 0, len(node.Requires)+len(node.BuildRequires))
		out = append(out, node.Requires...)

		if withBuild {
			out = append(out, node.BuildRequires...)
		}

		for i, idx := range out {
			// Requirements may be written as "2#revision".
			out[i], _, _ = strings.Cut(idx, "#")
		}

		return out
	}

	reach := func(start []string, withBuild bool) map[string]bool {
		seen := map[string]bool{}
		queue := append([]string(nil), start...)

		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]

			if seen[idx] || idx == conanRootNode {
				continue
			}

			seen[idx] = true
			queue = append(queue, children(nodes[idx], withBuild)...)
		}

		return seen
	}

	root := nodes[conanRootNode]
	direct := children(root, opts.IncludeBuildRequires)

	runtime := reach(children(root, false), false)
	included := reach(direct, opts.IncludeBuildRequires)

	explicit := map[string]bool{}
	for _, idx := range direct {
		explicit[idx] = true
	}

	for _, idx := range sortedKeys(included) {
		c, ok := components[idx]
		if !ok {
			continue
		}

		found.add(c, explicit[idx], "", model.Bool(!runtime[idx]))
	}

	for _, idx := range sortedKeys(included) {
		parent, ok := components[idx]
		if !ok {
			continue
		}

		for _, childIdx := range children(nodes[idx], opts.IncludeBuildRequires) {
			child, ok := components[childIdx]
			if !ok || !included[childIdx] || child.ID() == parent.ID() {
				continue
			}

			found.add(child, false, parent.ID(), model.Bool(!runtime[childIdx]))
		}
	}

	return found
}

type conanGraph struct {
	Graph struct {
		Nodes map[string]conanGraphNode `json:"nodes"`
	} `json:"graph"`
}

type conanGraphNode struct {
	Dependencies map[string]conanGraphEdge `json:"dependencies"`
	Ref          string                    `json:"ref"`
	Name         string                    `json:"name"`
	Version      string                    `json:"version"`
	User         string                    `json:"user"`
	Channel      string                    `json:"channel"`
	Rrev         string                    `json:"rrev"`
	Context      string                    `json:"context"`
}

type conanGraphEdge struct {
	Direct bool `json:"direct"`
	Build  bool `json:"build"`
}

// parseConanGraph reads the resolved graph of `conan graph info`. Files
// named graph.json that are not Conan graphs are ignored.
func parseConanGraph(req *detector.FileRequest, data []byte, opts ConanOptions) (usages, error) {
	var g conanGraph
	if err := json.Unmarshal(data, &g); err != nil || len(g.Graph.Nodes) == 0 {
		if strings.EqualFold(filepath.Base(req.Path), "graph.json") {
			return nil, nil
		}

		if err != nil {
			return nil, errors.Errorf("invalid conan graph: %w", err)
		}

		return nil, errors.Errorf("conan graph has no nodes")
	}

	var found usages

	req.Logger.Debug("Parsing conan graph")

	nodes := g.Graph.Nodes

	components := map[string]model.Component{}

	for idx, node := range nodes {
		if idx == conanRootNode || node.Name == "" {
			continue
		}

		if !opts.IncludeBuildRequires && node.Context == "build" {
			continue
		}

		channel := ""
		if node.User != "" || node.Channel != "" {
			channel = node.User + "/" + node.Channel
		}

		components[idx] = newConanComponent(node.Name, node.Version, channel, node.Rrev)
	}

	direct := map[string]bool{}
	for childIdx, edge := range nodes[conanRootNode].Dependencies {
		if edge.Direct {
			direct[childIdx] = true
		}
	}

	for _, idx := range sortedKeys(components) {
		dev := nodes[idx].Context == "build"
		found.add(components[idx], direct[idx], "", model.Bool(dev))
	}

	for _, idx := range sortedKeys(components) {
		parent := components[idx]

		for _, childIdx := range sortedKeys(nodes[idx].Dependencies) {
			edge := nodes[idx].Dependencies[childIdx]

			child, ok := components[childIdx]
			if !ok || child.ID() == parent.ID() || (edge.Build && !opts.IncludeBuildRequires) {
				continue
			}

			dev := nodes[childIdx].Context == "build"
			found.add(child, false, parent.ID(), model.Bool(dev))
		}
	}

	return found, nil
}
