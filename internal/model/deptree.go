package model

import "sort"

// TreeNode is a single node in the recursive dependency tree rendered for one
// location. Each node carries its full subtree inline, npm package-lock style.
//
// Example:
//
//	X@1 -> children: [A@1 -> children: [B@1]]
//	Y@1 -> children: [C@1 -> children: [A@1 -> children: [B@1]]]
type TreeNode struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	PURL           string      `json:"purl,omitempty"`
	DependencyType string      `json:"dependencyType"` // "direct" or "transitive"
	Development    bool        `json:"development,omitempty"`
	Children       []*TreeNode `json:"children,omitempty"`
}

// LocationTree is the dependency tree of one scanned location.
type LocationTree struct {
	Location string      `json:"location"`
	Roots    []*TreeNode `json:"roots"`
}

// workItem holds a pending node to be expanded along with the IDs on the path
// from the root to it, used to break cycles.
type workItem struct {
	id        string
	node      *TreeNode
	ancestors map[string]bool
}

// BuildDependencyTrees renders every location graph as a tree. Components maps
// IDs to their identity; IDs without an entry are rendered by ID only.
func BuildDependencyTrees(graphs DependencyGraphCollection, components map[string]Component) []LocationTree {
	locations := make([]string, 0, len(graphs))
	for location := range graphs {
		locations = append(locations, location)
	}

	sort.Strings(locations)

	trees := make([]LocationTree, 0, len(locations))
	for _, location := range locations {
		trees = append(trees, LocationTree{
			Location: location,
			Roots:    BuildDependencyTree(graphs[location], components),
		})
	}

	return trees
}

// BuildDependencyTree builds the tree for one location iteratively, level by
// level, with a queue instead of recursion so deep graphs cannot overflow the
// stack.
//
// Explicitly referenced components form the top level. If a location has no
// explicit references, components nothing depends on are used instead. A child
// that would close a cycle is emitted as a leaf.
func BuildDependencyTree(graph *GraphWithMetadata, components map[string]Component) []*TreeNode {
	if graph == nil {
		return nil
	}

	explicit := toSet(graph.ExplicitlyReferencedComponentIDs)
	development := toSet(graph.DevelopmentDependencies)

	rootIDs := append([]string(nil), graph.ExplicitlyReferencedComponentIDs...)
	if len(rootIDs) == 0 {
		rootIDs = parentlessIDs(graph.Graph)
	}

	sort.Strings(rootIDs)

	newNode := func(id string) *TreeNode {
		depType := "transitive"
		if explicit[id] {
			depType = "direct"
		}

		node := &TreeNode{ID: id, Name: id, DependencyType: depType, Development: development[id]}
		if c, ok := components[id]; ok {
			node.Name = c.Name
			node.Version = c.Version
			node.PURL = c.PURL()
		}

		return node
	}

	roots := make([]*TreeNode, 0, len(rootIDs))
	queue := make([]workItem, 0, len(rootIDs))

	for _, id := range rootIDs {
		node := newNode(id)
		roots = append(roots, node)
		queue = append(queue, workItem{id: id, node: node, ancestors: map[string]bool{id: true}})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		children := append([]string(nil), graph.Graph[item.id]...)
		sort.Strings(children)

		for _, childID := range children {
			childNode := newNode(childID)
			item.node.Children = append(item.node.Children, childNode)

			if item.ancestors[childID] {
				continue
			}

			childAncestors := make(map[string]bool, len(item.ancestors)+1)
			for k := range item.ancestors {
				childAncestors[k] = true
			}

			childAncestors[childID] = true

			queue = append(queue, workItem{id: childID, node: childNode, ancestors: childAncestors})
		}
	}

	return roots
}

func parentlessIDs(graph map[string][]string) []string {
	hasParent := map[string]bool{}

	for _, children := range graph {
		for _, child := range children {
			hasParent[child] = true
		}
	}

	var ids []string

	for id := range graph {
		if !hasParent[id] {
			ids = append(ids, id)
		}
	}

	return ids
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return set
}
