package plan

import (
	"sort"
	"strings"
)

// CycleError reports a dependency cycle discovered while resolving a Plan's
// #DEPENDS names into a DAG.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "circular dependency: " + strings.Join(e.Cycle, " -> ")
}

// UnresolvedDependencyError reports a #DEPENDS name that doesn't match any
// unit in the plan.
type UnresolvedDependencyError struct {
	Unit       string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return "unit \"" + e.Unit + "\" depends on unresolved name \"" + e.Dependency + "\""
}

// ResolveDependencies validates that every #DEPENDS name in the plan
// resolves to a unit name present in the plan, and that the resulting
// dependency graph is acyclic. It returns the resolved adjacency (unit name
// -> direct dependency names) for the scheduler to consume.
func ResolveDependencies(p *Plan) (map[string][]string, error) {
	known := make(map[string]bool)
	for _, item := range p.Items {
		if item.Kind == ItemUnit {
			known[item.Name] = true
		}
	}

	edges := make(map[string][]string)
	for _, item := range p.Items {
		if item.Kind != ItemUnit {
			continue
		}
		for _, dep := range item.DependsOn {
			if !known[dep] {
				return nil, &UnresolvedDependencyError{Unit: item.Name, Dependency: dep}
			}
		}
		edges[item.Name] = item.DependsOn
	}

	if cycle := findCycle(edges); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	return edges, nil
}

// findCycle runs a DFS over the dependency edges, reporting the first cycle
// found in deterministic (sorted) node order.
func findCycle(edges map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	for node := range edges {
		color[node] = white
	}

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		color[node] = gray
		deps := append([]string{}, edges[node]...)
		sort.Strings(deps)

		for _, dep := range deps {
			if color[dep] == gray {
				cycle = []string{dep}
				cur := node
				for cur != dep {
					cycle = append([]string{cur}, cycle...)
					cur = parent[cur]
				}
				cycle = append([]string{dep}, cycle...)
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	var nodes []string
	for node := range edges {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if color[node] == white {
			if dfs(node) {
				return cycle
			}
		}
	}
	return nil
}
