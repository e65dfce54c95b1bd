package output

import (
	"github.com/StinkyLord/depscan/internal/model"
)

// WriteDependencyTree serialises the scan result as a pure dependency tree JSON
// and writes it to the given output path. If outputPath is "-", it writes to stdout.
//
// The output is a JSON array with one entry per scanned location. Each entry
// lists the explicitly referenced components of that location as roots, each
// carrying a "children" array that recursively contains its dependencies.
//
// Example output:
//
//	[
//	  {
//	    "location": "/src/conan.lock",
//	    "roots": [
//	      {
//	        "id": "openssl 3.1.4 - Conan",
//	        "name": "openssl",
//	        "version": "3.1.4",
//	        "purl": "pkg:conan/openssl@3.1.4",
//	        "dependencyType": "direct",
//	        "children": [
//	          {
//	            "id": "zlib 1.2.13 - Conan",
//	            "name": "zlib",
//	            "version": "1.2.13",
//	            "purl": "pkg:conan/zlib@1.2.13",
//	            "dependencyType": "transitive"
//	          }
//	        ]
//	      }
//	    ]
//	  }
//	]
func WriteDependencyTree(result *model.ScanResult, outputPath string) error {
	return writeJSON(outputPath, model.BuildDependencyTrees(result.DependencyGraphs, componentsByID(result)))
}
