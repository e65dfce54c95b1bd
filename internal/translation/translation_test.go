package translation_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/scanner"
	"github.com/StinkyLord/depscan/internal/translation"
)

const root = "/src"

var (
	app    = model.NewComponent(model.ComponentTypeConan, "app", "1.0")
	other  = model.NewComponent(model.ComponentTypeConan, "other", "2.0")
	zlib   = model.NewComponent(model.ComponentTypeConan, "zlib", "1.3")
	libpng = model.NewComponent(model.ComponentTypeConan, "libpng", "1.6.40")
)

func newService() *translation.Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return translation.NewService(logger)
}

func register(
	t *testing.T,
	recorder *depgraph.ComponentRecorder,
	location string,
	c model.Component,
	explicit bool,
	parent string,
	dev *bool,
) {
	t.Helper()

	_, err := recorder.CreateSingleFileComponentRecorder(location).
		RegisterUsage(model.NewDetectedComponent(c), explicit, parent, dev)
	require.NoError(t, err)
}

func pair(id string, recorder *depgraph.ComponentRecorder) scanner.DetectorRecorder {
	return scanner.DetectorRecorder{Recorder: recorder, Detector: detector.Info{ID: id, Version: 1}}
}

func translate(t *testing.T, pairs ...scanner.DetectorRecorder) *model.ScanResult {
	t.Helper()

	result := newService().GenerateScanResult(&scanner.ProcessingResult{ComponentRecorders: pairs}, root)
	require.NotNil(t, result)

	return result
}

func find(t *testing.T, result *model.ScanResult, c model.Component, detectorID string) model.ScannedComponent {
	t.Helper()

	for _, sc := range result.ComponentsFound {
		if sc.Component.ID() == c.ID() && sc.DetectorID == detectorID {
			return sc
		}
	}

	require.Failf(t, "component not found", "%s by %s", c.ID(), detectorID)

	return model.ScannedComponent{}
}

func ids(components []model.Component) []string {
	out := make([]string, 0, len(components))
	for _, c := range components {
		out = append(out, c.ID())
	}

	return out
}

func TestDevelopmentFlagIsConjunctiveAcrossLocations(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/a/conanfile.txt", zlib, true, "", model.Bool(true))
	register(t, recorder, "/src/b/conanfile.txt", zlib, true, "", model.Bool(false))

	result := translate(t, pair("conan", recorder))

	require.Len(t, result.ComponentsFound, 1)

	sc := result.ComponentsFound[0]
	require.NotNil(t, sc.IsDevelopmentDependency)
	assert.False(t, *sc.IsDevelopmentDependency)
	assert.Equal(t, []string{"/a/conanfile.txt", "/b/conanfile.txt"}, sc.LocationsFoundAt)
	assert.Equal(t, "conan", sc.DetectorID)
}

func TestUnknownDevelopmentFlagAbsorbs(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/a/conanfile.txt", zlib, true, "", nil)
	register(t, recorder, "/src/b/conanfile.txt", zlib, true, "", model.Bool(true))
	register(t, recorder, "/src/c/conanfile.txt", libpng, true, "", nil)

	result := translate(t, pair("conan", recorder))

	z := find(t, result, zlib, "conan")
	require.NotNil(t, z.IsDevelopmentDependency)
	assert.True(t, *z.IsDevelopmentDependency)

	assert.Nil(t, find(t, result, libpng, "conan").IsDevelopmentDependency)
}

func TestFilePathsAreUnionOfLocationsAndRelatedFiles(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/vcpkg.json", zlib, true, "", nil)
	register(t, recorder, "/src/sub/vcpkg.json", zlib, true, "", nil)

	recorder.CreateSingleFileComponentRecorder("/src/vcpkg.json").AddAdditionalRelatedFile("/src/vcpkg-lock.json")
	recorder.CreateSingleFileComponentRecorder("/src/sub/vcpkg.json").AddAdditionalRelatedFile("/src/vcpkg-lock.json")

	result := translate(t, pair("vcpkg", recorder))

	sc := find(t, result, zlib, "vcpkg")
	assert.Equal(t, []string{"/sub/vcpkg.json", "/vcpkg-lock.json", "/vcpkg.json"}, sc.LocationsFoundAt)
}

func TestPathsOutsideRootAreDropped(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/conanfile.txt", zlib, true, "", nil)
	recorder.CreateSingleFileComponentRecorder("/src/conanfile.txt").AddAdditionalRelatedFile("/elsewhere/conan.lock")

	result := translate(t, pair("conan", recorder))

	assert.Equal(t, []string{"/conanfile.txt"}, find(t, result, zlib, "conan").LocationsFoundAt)
}

func TestRoots(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	location := "/src/conan.lock"
	register(t, recorder, location, app, true, "", nil)
	register(t, recorder, location, other, true, "", nil)
	register(t, recorder, location, zlib, false, app.ID(), nil)
	register(t, recorder, location, zlib, false, other.ID(), nil)
	register(t, recorder, location, libpng, false, "", nil)

	result := translate(t, pair("conan", recorder))

	t.Run("reachable from two explicit components", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, []string{app.ID(), other.ID()}, ids(find(t, result, zlib, "conan").TopLevelReferrers))
	})

	t.Run("explicit component is its own root", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, []string{app.ID()}, ids(find(t, result, app, "conan").TopLevelReferrers))
	})

	t.Run("component without explicit ancestor is its own root", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, []string{libpng.ID()}, ids(find(t, result, libpng, "conan").TopLevelReferrers))
	})
}

func TestRootsUnionAcrossLocations(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/a/conan.lock", app, true, "", nil)
	register(t, recorder, "/src/a/conan.lock", zlib, false, app.ID(), nil)
	register(t, recorder, "/src/b/conan.lock", other, true, "", nil)
	register(t, recorder, "/src/b/conan.lock", zlib, false, other.ID(), nil)

	result := translate(t, pair("conan", recorder))

	assert.Equal(t, []string{app.ID(), other.ID()}, ids(find(t, result, zlib, "conan").TopLevelReferrers))
}

func TestSingleLocationIsUnchanged(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/conanfile.txt", zlib, true, "", model.Bool(false))

	result := translate(t, pair("conan", recorder))

	require.Len(t, result.ComponentsFound, 1)
	assert.Equal(t, model.ScannedComponent{
		Component:               zlib,
		DetectorID:              "conan",
		IsDevelopmentDependency: model.Bool(false),
		LocationsFoundAt:        []string{"/conanfile.txt"},
		TopLevelReferrers:       []model.Component{zlib},
	}, result.ComponentsFound[0])
}

func TestSameComponentFromTwoDetectorsStaysSeparate(t *testing.T) {
	t.Parallel()

	conan := depgraph.NewComponentRecorder()
	register(t, conan, "/src/conanfile.txt", zlib, true, "", nil)

	vcpkg := depgraph.NewComponentRecorder()
	register(t, vcpkg, "/src/vcpkg.json", zlib, true, "", nil)

	result := translate(t, pair("conan", conan), pair("vcpkg", vcpkg))

	require.Len(t, result.ComponentsFound, 2)
	assert.Equal(t, "conan", result.ComponentsFound[0].DetectorID)
	assert.Equal(t, "vcpkg", result.ComponentsFound[1].DetectorID)
	assert.Equal(t, []string{"/conanfile.txt"}, result.ComponentsFound[0].LocationsFoundAt)
	assert.Equal(t, []string{"/vcpkg.json"}, result.ComponentsFound[1].LocationsFoundAt)
}

func TestNilRecorderIsSkipped(t *testing.T) {
	t.Parallel()

	result := translate(t, scanner.DetectorRecorder{Detector: detector.Info{ID: "empty"}})

	assert.Empty(t, result.ComponentsFound)
	assert.Empty(t, result.DependencyGraphs)
	assert.NotNil(t, result.ContainerDetailsMap)
}

func TestTranslationDoesNotMutateRecorder(t *testing.T) {
	t.Parallel()

	recorder := depgraph.NewComponentRecorder()
	register(t, recorder, "/src/conanfile.txt", zlib, true, "", nil)

	translate(t, pair("conan", recorder))

	stored, ok := recorder.CreateSingleFileComponentRecorder("/src/conanfile.txt").Component(zlib.ID())
	require.True(t, ok)
	assert.Empty(t, stored.FilePaths)
	assert.Empty(t, stored.DependencyRoots)
	assert.Empty(t, stored.DetectedBy)
}

func TestReduceIsOrderIndependent(t *testing.T) {
	t.Parallel()

	first := model.NewDetectedComponent(zlib)
	first.DetectedBy = "conan"
	first.DevelopmentDependency = model.Bool(true)
	first.AddComponentFilePath("/a/conanfile.txt")
	first.AddDependencyRoot(app)
	first.AddContainerDetailID(1, 3)

	second := model.NewDetectedComponent(zlib)
	second.DetectedBy = "conan"
	second.DevelopmentDependency = model.Bool(false)
	second.AddComponentFilePath("/b/conanfile.txt")
	second.AddDependencyRoot(other)
	second.AddContainerDetailID(1, 2)
	second.AddContainerDetailID(4)

	forward := translation.Reduce([]*model.DetectedComponent{first, second})
	backward := translation.Reduce([]*model.DetectedComponent{second, first})

	require.Len(t, forward, 1)
	assert.Equal(t, forward, backward)

	merged := forward[0]
	assert.Equal(t, []string{"/a/conanfile.txt", "/b/conanfile.txt"}, merged.LocationsFoundAt)
	assert.Equal(t, []string{app.ID(), other.ID()}, ids(merged.TopLevelReferrers))
	assert.Equal(t, []int{1, 4}, merged.ContainerDetailIDs)
	assert.Equal(t, map[int][]int{1: {2, 3}}, merged.ContainerLayerIDs)
	require.NotNil(t, merged.IsDevelopmentDependency)
	assert.False(t, *merged.IsDevelopmentDependency)

	// inputs are left untouched
	assert.Len(t, first.FilePaths, 1)
	assert.True(t, *first.DevelopmentDependency)
}

func TestGenerateScanResultCarriesEngineOutput(t *testing.T) {
	t.Parallel()

	processing := &scanner.ProcessingResult{
		ContainerDetails: map[int]*model.ContainerDetails{7: {ID: 7, ImageID: "sha256:abc"}},
		DetectorsInRun:   []model.DetectorInRun{{DetectorID: "conan", Version: 2}},
		ResultCode:       model.ResultPartialSuccess,
	}

	result := newService().GenerateScanResult(processing, root)

	assert.Equal(t, root, result.SourceDirectory)
	assert.Equal(t, model.ResultPartialSuccess, result.ResultCode)
	assert.Equal(t, processing.ContainerDetails, result.ContainerDetailsMap)
	assert.Equal(t, processing.DetectorsInRun, result.DetectorsInRun)
	assert.Empty(t, result.ComponentsFound)
}

func TestAccumulateGraphs(t *testing.T) {
	t.Parallel()

	location := "/src/conan.lock"

	conan := depgraph.NewComponentRecorder()
	register(t, conan, location, app, true, "", model.Bool(false))
	register(t, conan, location, zlib, false, app.ID(), model.Bool(true))

	// a second detector reporting the same location must not replace the first graph
	second := depgraph.NewComponentRecorder()
	register(t, second, location, app, true, "", nil)
	register(t, second, location, libpng, false, app.ID(), nil)
	register(t, second, "/src/vcpkg.json", libpng, true, "", nil)

	graphs := translation.AccumulateGraphs([]scanner.DetectorRecorder{pair("conan", conan), pair("second", second)})

	require.Len(t, graphs, 2)

	merged := graphs[location]
	require.NotNil(t, merged)
	assert.Equal(t, map[string][]string{
		app.ID():    {libpng.ID(), zlib.ID()},
		libpng.ID(): {},
		zlib.ID():   {},
	}, merged.Graph)
	assert.Equal(t, []string{app.ID()}, merged.ExplicitlyReferencedComponentIDs)
	assert.Equal(t, []string{zlib.ID()}, merged.DevelopmentDependencies)
	assert.Equal(t, []string{app.ID()}, merged.Dependencies)

	assert.Equal(t, []string{libpng.ID()}, graphs["/src/vcpkg.json"].ExplicitlyReferencedComponentIDs)
}
