// Package model defines the data structures shared by detectors, the detector
// execution engine and the graph translation service.
package model

import (
	"net/url"
	"strings"
)

// ComponentType is the ecosystem a component belongs to.
type ComponentType string

const (
	ComponentTypeConan   ComponentType = "Conan"
	ComponentTypeVcpkg   ComponentType = "Vcpkg"
	ComponentTypeMeson   ComponentType = "Meson"
	ComponentTypeNpm     ComponentType = "Npm"
	ComponentTypeNuGet   ComponentType = "NuGet"
	ComponentTypePip     ComponentType = "Pip"
	ComponentTypeGeneric ComponentType = "Generic"
)

// Component is an identified piece of third-party code. It is a value type and
// must not be modified after construction; its ID is derived from its fields.
type Component struct {
	Type    ComponentType `json:"type"`
	Name    string        `json:"name"`
	Version string        `json:"version"`

	// Revision and Channel are Conan specific ("zlib/1.2.13@conan/stable#abc123").
	Revision string `json:"revision,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// NewComponent returns a component with an "unknown" version if none was found.
func NewComponent(componentType ComponentType, name, version string) Component {
	if version == "" {
		version = "unknown"
	}

	return Component{Type: componentType, Name: name, Version: version}
}

// ID returns the stable identifier of the component. Two sightings of the same
// logical component always produce the same ID.
func (c Component) ID() string {
	id := c.Name + " " + c.Version
	if c.Channel != "" && c.Channel != "_/_" {
		id += "@" + c.Channel
	}

	if c.Revision != "" {
		id += "#" + c.Revision
	}

	return id + " - " + string(c.Type)
}

// PURL returns the package URL of the component.
func (c Component) PURL() string {
	ecosystem := purlTypes[c.Type]
	if ecosystem == "" {
		ecosystem = "generic"
	}

	purl := "pkg:" + ecosystem + "/" + url.PathEscape(strings.ToLower(c.Name))
	if c.Version != "" && c.Version != "unknown" {
		purl += "@" + url.PathEscape(c.Version)
	}

	if c.Channel != "" && c.Channel != "_/_" {
		purl += "?channel=" + strings.ReplaceAll(c.Channel, "/", "%2F")
	}

	return purl
}

var purlTypes = map[ComponentType]string{
	ComponentTypeConan: "conan",
	ComponentTypeVcpkg: "generic",
	ComponentTypeMeson: "generic",
	ComponentTypeNpm:   "npm",
	ComponentTypeNuGet: "nuget",
	ComponentTypePip:   "pypi",
}
