package detectors

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/fingerprints"
	"github.com/StinkyLord/depscan/internal/model"
)

// CompileCommandsDetectorID identifies the compilation database detector.
const CompileCommandsDetectorID = "compilecommands"

// compileCommand is one entry of compile_commands.json.
type compileCommand struct {
	Directory string   `json:"directory"`
	Command   string   `json:"command"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
}

// includeFlags take the include directory as the next argument when it is not
// attached.
var includeFlags = []string{"-isystem", "-idirafter", "-iquote", "-imsvc", "-I", "/I"}

// NewCompileCommandsDetector detects third-party libraries from the include
// directories and link inputs of a compilation database. Only paths outside the
// source tree are considered. It is experimental.
func NewCompileCommandsDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta:           detector.Info{ID: CompileCommandsDetectorID, Version: 1, Experimental: true},
		SearchPatterns: []string{"compile_commands.json"},
		Process:        processCompileCommands,
	}
}

func processCompileCommands(_ context.Context, req *detector.FileRequest) error {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	req.Logger.Debug("Parsing compilation database")

	found, err := parseCompileCommands(data, req.SourceDirectory)
	if err != nil {
		return err
	}

	return commit(req.Recorder, found)
}

func parseCompileCommands(data []byte, root string) (usages, error) {
	var commands []compileCommand
	if err := json.Unmarshal(data, &commands); err != nil {
		return nil, errors.Errorf("invalid compile_commands.json: %w", err)
	}

	byName := map[string]model.Component{}

	for _, cmd := range commands {
		args := cmd.Arguments
		if len(args) == 0 {
			args = strings.Fields(cmd.Command)
		}

		includes, libs, libFiles := compileInputs(args)

		for _, dir := range includes {
			dir = resolveAgainst(cmd.Directory, dir)
			if !isExternalPath(dir, root) {
				continue
			}

			if lib, version, ok := fingerprints.FromPath(dir); ok {
				keepVersioned(byName, model.NewComponent(model.ComponentTypeGeneric, lib.Name, version))
			}
		}

		for _, name := range libs {
			if lib, ok := fingerprints.FromLibraryFile(name); ok {
				keepVersioned(byName, model.NewComponent(model.ComponentTypeGeneric, lib.Name, fingerprints.VersionFromLibraryFile(name)))
			}
		}

		for _, file := range libFiles {
			file = resolveAgainst(cmd.Directory, file)
			if !isExternalPath(file, root) {
				continue
			}

			if c, ok := libraryFileComponent(file); ok {
				keepVersioned(byName, c)
			}
		}
	}

	var found usages

	for _, name := range sortedKeys(byName) {
		found.add(byName[name], true, "", nil)
	}

	return found, nil
}

// compileInputs splits compiler arguments into include directories, link
// names (-lz, /DEFAULTLIB:zlib.lib) and library files given by path.
func compileInputs(args []string) (includes, libs, libFiles []string) {
	for i := 0; i < len(args); i++ {
		arg := strings.Trim(args[i], `"'`)

		if attached, ok := cutIncludeFlag(arg); ok {
			if attached != "" {
				includes = append(includes, attached)
			} else if i+1 < len(args) {
				i++
				includes = append(includes, strings.Trim(args[i], `"'`))
			}

			continue
		}

		switch {
		case strings.HasPrefix(arg, "-l") && len(arg) > 2:
			libs = append(libs, arg[2:])
		case len(arg) > len("/DEFAULTLIB:") && strings.EqualFold(arg[:len("/DEFAULTLIB:")], "/DEFAULTLIB:"):
			libs = append(libs, arg[len("/DEFAULTLIB:"):])
		case reLibFile.MatchString(arg):
			libFiles = append(libFiles, arg)
		}
	}

	return includes, libs, libFiles
}

func cutIncludeFlag(arg string) (string, bool) {
	for _, flag := range includeFlags {
		if value, found := strings.CutPrefix(arg, flag); found {
			return value, true
		}
	}

	return "", false
}

// resolveAgainst makes a relative path absolute against the entry's directory.
func resolveAgainst(dir, p string) string {
	p = normalizeSlashes(p)
	if strings.HasPrefix(p, "/") || hasDriveLetter(p) || dir == "" {
		return p
	}

	return path.Join(normalizeSlashes(dir), p)
}
