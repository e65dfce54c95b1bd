// Package fingerprints maps the names build systems use for well-known C/C++
// libraries to one canonical component name, so that find_package(GTest) and
// FetchContent_Declare(googletest) describe the same component.
package fingerprints

import (
	"regexp"
	"strings"
)

// Library describes one known library.
type Library struct {
	// Name is the canonical component name.
	Name string

	// Aliases are the other names the library is imported under, e.g. the
	// CMake package name or the name of its config module.
	Aliases []string
}

// KnownLibraries is the built-in alias database.
var KnownLibraries = []Library{
	{Name: "boost", Aliases: []string{"Boost"}},
	{Name: "openssl", Aliases: []string{"OpenSSL", "ssl", "crypto"}},
	{Name: "zlib", Aliases: []string{"ZLIB", "z"}},
	{Name: "libcurl", Aliases: []string{"CURL", "curl"}},
	{Name: "sqlite3", Aliases: []string{"SQLite3", "sqlite"}},
	{Name: "googletest", Aliases: []string{"GTest", "gtest", "GMock", "gtest_main", "gmock_main"}},
	{Name: "nlohmann-json", Aliases: []string{"nlohmann_json", "json"}},
	{Name: "eigen", Aliases: []string{"Eigen3"}},
	{Name: "protobuf", Aliases: []string{"Protobuf"}},
	{Name: "grpc", Aliases: []string{"gRPC", "grpc++"}},
	{Name: "abseil", Aliases: []string{"absl"}},
	{Name: "fmt"},
	{Name: "spdlog"},
	{Name: "catch2", Aliases: []string{"Catch2"}},
	{Name: "libuv", Aliases: []string{"uv"}},
	{Name: "libpng", Aliases: []string{"PNG", "png16"}},
	{Name: "libjpeg", Aliases: []string{"JPEG"}},
	{Name: "opencv", Aliases: []string{"OpenCV"}},
	{Name: "poco", Aliases: []string{"Poco"}},
	{Name: "qt", Aliases: []string{"Qt5", "Qt6"}},
	{Name: "wxwidgets", Aliases: []string{"wxWidgets"}},
	{Name: "tbb", Aliases: []string{"TBB"}},
	{Name: "glfw", Aliases: []string{"glfw3"}},
	{Name: "glm"},
	{Name: "rapidjson", Aliases: []string{"RapidJSON"}},
	{Name: "yaml-cpp", Aliases: []string{"yaml_cpp"}},
	{Name: "pugixml"},
	{Name: "tinyxml2"},
	{Name: "zstd"},
	{Name: "lz4"},
	{Name: "flatbuffers", Aliases: []string{"FlatBuffers"}},
	{Name: "msgpack", Aliases: []string{"msgpack-cxx"}},
	{Name: "asio"},
	{Name: "websocketpp"},
	{Name: "benchmark"},
	{Name: "cereal"},
	{Name: "cxxopts"},
	{Name: "cli11", Aliases: []string{"CLI11"}},
	{Name: "re2"},
	{Name: "leveldb"},
	{Name: "rocksdb", Aliases: []string{"RocksDB"}},
	{Name: "libsodium", Aliases: []string{"sodium"}},
	{Name: "mbedtls", Aliases: []string{"MbedTLS"}},
	{Name: "libevent", Aliases: []string{"Libevent"}},
	{Name: "folly"},
	{Name: "arrow", Aliases: []string{"Arrow"}},
	{Name: "libgcc", Aliases: []string{"gcc"}},
	{Name: "libstdc++", Aliases: []string{"stdc++", "stdc++_nano"}},
	{Name: "newlib", Aliases: []string{"c_nano", "g_nano"}},
	{Name: "libnosys", Aliases: []string{"nosys"}},
}

var byAlias = func() map[string]*Library {
	index := map[string]*Library{}

	for i := range KnownLibraries {
		lib := &KnownLibraries[i]
		index[strings.ToLower(lib.Name)] = lib

		for _, alias := range lib.Aliases {
			index[strings.ToLower(alias)] = lib
		}
	}

	return index
}()

// Lookup returns the library known under name, compared case-insensitively.
// Only whole names match: "zlib-ng" is not zlib.
func Lookup(name string) (*Library, bool) {
	lib, ok := byAlias[strings.ToLower(strings.TrimSpace(name))]
	return lib, ok
}

// Canonical returns the canonical name of a known library, or name lowercased.
func Canonical(name string) string {
	if lib, ok := Lookup(name); ok {
		return lib.Name
	}

	return strings.ToLower(strings.TrimSpace(name))
}

// reVersionSuffix finds where a version starts in names like boost_1_82_0 or openssl-3.1.4.
var reVersionSuffix = regexp.MustCompile(`[-_]v?\d`)

// reVersionInName extracts that version.
var reVersionInName = regexp.MustCompile(`[-_]v?(\d+)[._](\d+)(?:[._](\d+))?`)

// reVersionInLibName matches MSVC-decorated names like boost_system-vc143-mt-x64-1_82.
var reVersionInLibName = regexp.MustCompile(`[-_](\d+)[._](\d+)(?:[._](\d+))?$`)

var reVersionSegment = regexp.MustCompile(`^v?\d+(?:\.\d+)+$`)

// FromLibraryFile returns the library a linked file or link name belongs to,
// e.g. "libssl.so.3", "/opt/lib/libz.a", "boost_system-vc143-mt-x64-1_82.lib"
// or the "z" of -lz.
func FromLibraryFile(file string) (*Library, bool) {
	base := libraryBase(file)
	if base == "" {
		return nil, false
	}

	candidates := []string{base}
	if trimmed, ok := strings.CutPrefix(base, "lib"); ok && trimmed != "" {
		candidates = append(candidates, trimmed)
	}

	for _, name := range candidates {
		if lib, ok := Lookup(name); ok {
			return lib, true
		}

		// boost_system-vc143-mt-x64-1_82, absl_strings
		for _, sep := range []string{"-", "_"} {
			if prefix, _, cut := strings.Cut(name, sep); cut && prefix != "" {
				if lib, ok := Lookup(prefix); ok {
					return lib, true
				}
			}
		}
	}

	return nil, false
}

// VersionFromLibraryFile returns the version encoded in a decorated library
// name, or "". Shared object suffixes are ABI versions and are ignored.
func VersionFromLibraryFile(file string) string {
	return joinVersion(reVersionInLibName.FindStringSubmatch(libraryBase(file)))
}

// FromPath returns the known library named by the innermost matching segment
// of an include or install path, with the version found next to it:
// "/opt/boost_1_82_0/include" gives boost 1.82.0 and
// "~/.conan/data/zlib/1.3/_/_/package/x/include" gives zlib 1.3.
func FromPath(p string) (*Library, string, bool) {
	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })

	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]

		name := segment
		if loc := reVersionSuffix.FindStringIndex(segment); loc != nil && loc[0] > 0 {
			name = segment[:loc[0]]
		}

		lib, ok := Lookup(name)
		if !ok {
			continue
		}

		version := joinVersion(reVersionInName.FindStringSubmatch(segment))
		if version == "" && i+1 < len(segments) && reVersionSegment.MatchString(segments[i+1]) {
			version = strings.TrimPrefix(segments[i+1], "v")
		}

		return lib, version, true
	}

	return nil, "", false
}

func libraryBase(file string) string {
	base := strings.ToLower(strings.TrimSpace(file))
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}

	if i := strings.Index(base, ".so"); i > 0 {
		base = base[:i]
	}

	for _, ext := range []string{".a", ".lib", ".dll", ".dylib"} {
		base = strings.TrimSuffix(base, ext)
	}

	return base
}

func joinVersion(m []string) string {
	if m == nil {
		return ""
	}

	v := m[1] + "." + m[2]
	if m[3] != "" {
		v += "." + m[3]
	}

	return v
}
