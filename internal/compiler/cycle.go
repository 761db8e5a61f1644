package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rxnsim/internal/ir"
)

// CycleWarning represents a cycle among assignment rules.
//
// Cycles are warnings, not errors: the runtime evaluates a cyclic group a
// bounded number of times, and a model whose values converge within those
// passes still simulates. Most cycles are authoring mistakes though.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["x", "y", "x"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeRuleCycles performs static cycle analysis on assignment rules.
//
// The algorithm:
//  1. Build variable → variable edges: rule for x reads y, and y is itself
//     the target of an assignment rule
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Calls to function definitions are followed: a rule that passes y to a
// function depends on y. Nodes are visited in declaration order so the
// warnings are stable.
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeRuleCycles(m *ir.Model) []CycleWarning {
	graph, order := buildRuleGraph(m)
	if len(order) == 0 {
		return []CycleWarning{}
	}

	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps rule variable → rule variables it reads.
type dependencyGraph map[string][]string

// buildRuleGraph constructs the assignment-rule dependency graph and the
// declaration order of its nodes.
func buildRuleGraph(m *ir.Model) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	var order []string

	targets := make(map[string]bool)
	for _, r := range m.Rules {
		if r.Kind == ir.RuleAssignment {
			targets[r.Variable] = true
		}
	}

	for _, r := range m.Rules {
		if r.Kind != ir.RuleAssignment {
			continue
		}
		if _, seen := graph[r.Variable]; !seen {
			graph[r.Variable] = []string{}
			order = append(order, r.Variable)
		}
		for _, name := range mathNames(r.Math) {
			if targets[name] {
				graph[r.Variable] = append(graph[r.Variable], name)
			}
		}
	}

	return graph, order
}

// mathNames returns the model symbols read by n. Function formal names never
// escape a call, so only the actual arguments contribute.
func mathNames(n *ir.ASTNode) []string {
	if n == nil {
		return nil
	}
	return n.Names()
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of variables.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
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

		// v is a root node: pop the stack into an SCC
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

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		v := scc[0]
		return CycleWarning{
			Path:    []string{v, v},
			Message: fmt.Sprintf("assignment rule for %s reads its own value", v),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("cyclic assignment rules: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Start at the first node of the SCC and follow edges to other members
// until the walk returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
