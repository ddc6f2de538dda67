package tree

import (
	"sort"
	"strings"

	"github.com/docshelf/backend/internal/models"
)

// Build assembles flat records into a tree using their parent references.
// Records whose parent is unknown, or that sit on a parent cycle, become
// roots. The input is not modified. Folders sort before documents, then by
// name.
func Build(flat []*models.HashDoc) []*models.HashDoc {
	nodes := make(map[string]*models.HashDoc, len(flat))
	order := make([]string, 0, len(flat))
	for _, d := range flat {
		if d == nil {
			continue
		}
		n := *d
		n.Children = nil
		if _, dup := nodes[n.ID]; !dup {
			order = append(order, n.ID)
		}
		nodes[n.ID] = &n
	}

	var roots []*models.HashDoc
	for _, id := range order {
		n := nodes[id]
		parent, ok := nodes[n.Parent]
		if n.Parent == "" || !ok || onCycle(nodes, n) {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortNodes(roots)
	return roots
}

// onCycle reports whether walking up from n returns to n.
func onCycle(nodes map[string]*models.HashDoc, n *models.HashDoc) bool {
	seen := map[string]bool{n.ID: true}
	for p := n.Parent; p != ""; {
		if seen[p] {
			return p == n.ID
		}
		seen[p] = true
		parent, ok := nodes[p]
		if !ok {
			return false
		}
		p = parent.Parent
	}
	return false
}

func sortNodes(list []*models.HashDoc) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	for _, n := range list {
		if len(n.Children) > 0 {
			sortNodes(n.Children)
		}
	}
}

// Walk calls fn for every node in depth-first order with its depth.
func Walk(roots []*models.HashDoc, fn func(doc *models.HashDoc, depth int)) {
	var walk func(list []*models.HashDoc, depth int)
	walk = func(list []*models.HashDoc, depth int) {
		for _, d := range list {
			fn(d, depth)
			walk(d.Children, depth+1)
		}
	}
	walk(roots, 0)
}

// Find returns the node with id, or nil.
func Find(roots []*models.HashDoc, id string) *models.HashDoc {
	var found *models.HashDoc
	Walk(roots, func(d *models.HashDoc, _ int) {
		if found == nil && d.ID == id {
			found = d
		}
	})
	return found
}
