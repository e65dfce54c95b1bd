package fingerprints

import (
	"strings"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "GTest", want: "googletest"},
		{in: "gtest", want: "googletest"},
		{in: "googletest", want: "googletest"},
		{in: "OpenSSL", want: "openssl"},
		{in: "Qt6", want: "qt"},
		{in: " ZLIB ", want: "zlib"},
		{in: "zlib-ng", want: "zlib-ng"},
		{in: "MyInternalLib", want: "myinternallib"},
	}

	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAliasesAreUnique(t *testing.T) {
	seen := map[string]string{}

	for _, lib := range KnownLibraries {
		for _, name := range append([]string{lib.Name}, lib.Aliases...) {
			if owner, ok := seen[strings.ToLower(name)]; ok && owner != lib.Name {
				t.Errorf("alias %q used by %s and %s", name, owner, lib.Name)
			}

			seen[strings.ToLower(name)] = lib.Name
		}
	}
}

func TestLookupMisses(t *testing.T) {
	if _, ok := Lookup("openssl-extras"); ok {
		t.Error("Lookup matched a name that only contains a known library")
	}
}

func TestFromLibraryFile(t *testing.T) {
	tests := []struct {
		file    string
		want    string
		version string
	}{
		{file: "/usr/lib/x86_64-linux-gnu/libssl.so.3", want: "openssl"},
		{file: "libcrypto.a", want: "openssl"},
		{file: "z", want: "zlib"},
		{file: `c:/toolchain/nofp\libc_nano.a`, want: "newlib"},
		{file: "libstdc++_nano.a", want: "libstdc++"},
		{file: "libgcc.a", want: "libgcc"},
		{file: "libboost_system-vc143-mt-x64-1_82.lib", want: "boost", version: "1.82"},
		{file: "zlibstatic.lib", want: ""},
		{file: "libpthread.so.0", want: ""},
	}

	for _, tt := range tests {
		lib, ok := FromLibraryFile(tt.file)

		got := ""
		if ok {
			got = lib.Name
		}

		if got != tt.want {
			t.Errorf("FromLibraryFile(%q) = %q, want %q", tt.file, got, tt.want)
		}

		if v := VersionFromLibraryFile(tt.file); v != tt.version {
			t.Errorf("VersionFromLibraryFile(%q) = %q, want %q", tt.file, v, tt.version)
		}
	}
}

func TestFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		version string
	}{
		{path: "/opt/boost_1_82_0/include", want: "boost", version: "1.82.0"},
		{path: "/opt/openssl-3.1.4/lib", want: "openssl", version: "3.1.4"},
		{path: "/home/u/.conan/data/zlib/1.3/_/_/package/abc/include", want: "zlib", version: "1.3"},
		{path: `C:\vcpkg\installed\x64-windows\include\fmt`, want: "fmt"},
		{path: "/usr/include/openssl", want: "openssl"},
		{path: "/usr/local/include", want: ""},
	}

	for _, tt := range tests {
		lib, version, ok := FromPath(tt.path)

		got := ""
		if ok {
			got = lib.Name
		}

		if got != tt.want || version != tt.version {
			t.Errorf("FromPath(%q) = %q %q, want %q %q", tt.path, got, version, tt.want, tt.version)
		}
	}
}
