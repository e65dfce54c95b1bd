package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// Supported output formats.
const (
	FormatJSON      = "json"
	FormatCycloneDX = "cyclonedx"
	FormatTree      = "tree"
)

// ErrUnsupportedFormat is returned for an unknown --format value.
var ErrUnsupportedFormat = errors.Errorf("unsupported format")

// Write renders result in the given format to outputPath, or stdout for "-".
func Write(result *model.ScanResult, format, outputPath, toolVersion string) error {
	switch format {
	case FormatJSON, "":
		return WriteManifest(result, outputPath)
	case FormatCycloneDX, "cdx":
		return WriteCycloneDX(result, outputPath, toolVersion)
	case FormatTree:
		return WriteDependencyTree(result, outputPath)
	default:
		return errors.Errorf("%w %q (supported: %s, %s, %s)", ErrUnsupportedFormat, format, FormatJSON, FormatCycloneDX, FormatTree)
	}
}

// WriteManifest writes the scan result itself as indented JSON.
func WriteManifest(result *model.ScanResult, outputPath string) error {
	return writeJSON(outputPath, result)
}

// writeJSON marshals v as indented JSON and writes it to outputPath (or stdout if "-").
func writeJSON(outputPath string, v any) error {
	if outputPath == "-" {
		return encodeJSON(os.Stdout, v)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return errors.New(err)
	}

	if err := encodeJSON(f, v); err != nil {
		f.Close()
		return err
	}

	return errors.New(f.Close())
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return errors.Errorf("failed to marshal JSON: %w", err)
	}

	return nil
}
