// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relations

import "github.com/AleutianAI/AleutianCatalog/services/catalog/model"

// adjacency maps a consumer service id to the providers it depends on, in
// edge insertion order.
type adjacency map[string][]string

// scopedAdjacency builds the consumer -> provider adjacency of the edges
// whose environment equals env exactly (unset matches only unset).
func scopedAdjacency(edges []*model.ServiceToServiceDependency, env *string) adjacency {
	adj := make(adjacency)
	for _, e := range edges {
		if !model.SameEnvironment(e.EnvironmentCode, env) {
			continue
		}
		adj[e.ConsumerServiceID] = append(adj[e.ConsumerServiceID], e.ProviderServiceID)
	}
	return adj
}

// reachable reports whether target can be reached from start by following
// adj, and how many services were visited.
//
// Description:
//
//	Depth-first walk with an explicit stack and a visited set. Each service
//	is expanded at most once, so the walk ends after at most V pops and E
//	edge inspections even if adj already contains a cycle. The first path
//	to target ends the walk.
//
// Inputs:
//
//	adj - Consumer -> providers adjacency for one environment scope.
//	start - Service to walk from (the provider of the proposed edge).
//	target - Service whose reachability closes a loop (the consumer).
//
// Outputs:
//
//	bool - True if a path start ->* target exists.
//	int - Number of distinct services visited.
func reachable(adj adjacency, start, target string) (bool, int) {
	if start == target {
		return true, 1
	}

	visited := map[string]struct{}{start: {}}
	stack := []string{start}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range adj[node] {
			if next == target {
				return true, len(visited) + 1
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false, len(visited)
}

// HasCycle reports whether the edges of one environment scope contain a
// directed cycle. Used to verify the acyclicity invariant in tests and by
// the graph command's consistency check.
func HasCycle(edges []*model.ServiceToServiceDependency, env *string) bool {
	adj := scopedAdjacency(edges, env)

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(adj))

	type frame struct {
		node string
		next int
	}

	for root := range adj {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{node: root}}
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			providers := adj[top.node]
			if top.next == len(providers) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				continue
			}
			child := providers[top.next]
			top.next++

			switch state[child] {
			case onStack:
				return true
			case unvisited:
				state[child] = onStack
				stack = append(stack, frame{node: child})
			}
		}
	}
	return false
}
