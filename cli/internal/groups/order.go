package groups

import "fmt"

// Order produces a total order over the batch that applies every group after
// its dependencies, or an error when the dependency relation is not a DAG.
//
// The ready set is processed as a stack (most recently made ready goes
// first), which is deterministic within one run but otherwise an arbitrary
// choice among valid topological orders.
func Order(gs []Group) ([]int, error) {
	n := len(gs)
	if err := checkDependencyIndices(gs); err != nil {
		return nil, err
	}

	// Edge dep -> dependent; in-degree counts unmet dependencies.
	dependents := make([][]int, n)
	inDegree := make([]int, n)
	for i, g := range gs {
		for _, dep := range g.Dependencies {
			dependents[dep] = append(dependents[dep], i)
			inDegree[i]++
		}
	}

	var stack []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			stack = append(stack, i)
		}
	}

	order := make([]int, 0, n)
	for len(stack) > 0 {
		g := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, g)
		for _, d := range dependents[g] {
			inDegree[d]--
			if inDegree[d] == 0 {
				stack = append(stack, d)
			}
		}
	}

	if len(order) < n {
		return nil, fmt.Errorf("circular dependency detected among %d groups", n-len(order))
	}
	return order, nil
}

// checkDependencyIndices rejects out-of-range and self dependencies before
// any graph work happens.
func checkDependencyIndices(gs []Group) error {
	n := len(gs)
	for i, g := range gs {
		for _, dep := range g.Dependencies {
			if dep < 0 || dep >= n {
				return fmt.Errorf("group %d: dependency index %d out of range (batch size %d)", i, dep, n)
			}
			if dep == i {
				return fmt.Errorf("group %d depends on itself", i)
			}
		}
	}
	return nil
}
