package resolver

import (
	"fmt"
	"strings"

	"github.com/roach88/svcidl/internal/idl"
)

// CycleWarning reports a group of mutually recursive type defs.
//
// Recursive types are legal: resolution terminates on name lookup and the
// wire codec only recurses as deep as the value being encoded. The warning
// exists for generator authors, whose target languages may need boxing.
type CycleWarning struct {
	Path    []string `json:"path"`    // e.g. ["A", "B", "A"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // Always "info"
}

// AnalyzeCycles finds recursive groups among an interface's local type defs.
//
// The algorithm:
//  1. Build a def → referenced local defs graph from fields and variants
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self-loop, as a warning
//
// Nodes and edges are visited in declaration order, so the result is
// deterministic. An acyclic interface returns an empty list.
func AnalyzeCycles(iface *idl.Interface) []CycleWarning {
	graph, order := buildTypeGraph(iface)

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// typeGraph maps def name → local defs it references, in field order.
type typeGraph map[string][]string

func buildTypeGraph(iface *idl.Interface) (typeGraph, []string) {
	graph := make(typeGraph)
	var order []string

	addDef := func(def *idl.TypeDef) {
		order = append(order, def.Name)
		seen := make(map[string]bool)
		edges := []string{}
		visit := func(t idl.Type) {
			idl.Walk(t, func(t idl.Type) {
				if d, ok := t.(idl.Defined); ok && d.Namespace == "" && !seen[d.Name] {
					seen[d.Name] = true
					edges = append(edges, d.Name)
				}
			})
		}
		for _, f := range def.Fields {
			visit(f.Type)
		}
		for _, v := range def.Variants {
			for _, f := range v.Fields {
				visit(f.Type)
			}
			for _, e := range v.Elems {
				visit(e)
			}
		}
		graph[def.Name] = edges
	}
	for i := range iface.TypeDefs {
		addDef(&iface.TypeDefs[i])
	}
	for i := range iface.Events {
		addDef(&iface.Events[i])
	}
	return graph, order
}

func hasSelfLoop(node string, graph typeGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph typeGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph typeGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-referential type: %s → %s", name, name),
			Level:   "info",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Mutually recursive types: %s", strings.Join(path, " → ")),
		Level:   "info",
	}
}

// reconstructCyclePath follows edges inside the SCC from its last-popped
// member (the DFS root) until it returns to the start.
func reconstructCyclePath(scc []string, graph typeGraph) []string {
	members := make(map[string]bool)
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
