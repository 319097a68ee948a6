package planner

import (
	"sort"
	"time"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// CriticalPath computes the longest path through steps' dependency DAG,
// weighted by EstimatedDuration, ties broken by step id (spec §4.3
// Phase 3, §3 invariant 4). Returns the path (source-to-sink order) and
// its total duration.
func CriticalPath(steps []model.ExecutionStep) ([]ids.StepID, time.Duration) {
	byID := make(map[ids.StepID]model.ExecutionStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	ordered := topoOrder(steps)

	type best struct {
		duration time.Duration
		prev     ids.StepID
		hasPrev  bool
	}
	bestAt := make(map[ids.StepID]best, len(steps))

	for _, id := range ordered {
		s := byID[id]
		var b best
		for _, pred := range sortedPreds(s.Predecessors) {
			candidate := bestAt[pred].duration + s.EstimatedDuration
			if candidate > b.duration || (candidate == b.duration && b.hasPrev && pred < b.prev) {
				b = best{duration: candidate, prev: pred, hasPrev: true}
			}
		}
		if !b.hasPrev {
			b = best{duration: s.EstimatedDuration}
		}
		bestAt[id] = b
	}

	var sinkID ids.StepID
	var sinkDuration time.Duration
	first := true
	for _, id := range ordered {
		d := bestAt[id].duration
		if first || d > sinkDuration || (d == sinkDuration && id < sinkID) {
			sinkID, sinkDuration, first = id, d, false
		}
	}
	if first {
		return nil, 0
	}

	var path []ids.StepID
	for cur, ok := sinkID, true; ok; {
		path = append([]ids.StepID{cur}, path...)
		b := bestAt[cur]
		if !b.hasPrev {
			break
		}
		cur = b.prev
	}
	return path, sinkDuration
}

func sortedPreds(preds []ids.StepID) []ids.StepID {
	out := append([]ids.StepID(nil), preds...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// topoOrder returns steps' ids in a deterministic topological order
// (Kahn's algorithm, ready set broken by lexicographic step id), so
// downstream DP and parallel-group computation never depend on input
// slice order.
func topoOrder(steps []model.ExecutionStep) []ids.StepID {
	indegree := make(map[ids.StepID]int, len(steps))
	successors := make(map[ids.StepID][]ids.StepID, len(steps))
	for _, s := range steps {
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
		for _, pred := range s.Predecessors {
			indegree[s.ID]++
			successors[pred] = append(successors[pred], s.ID)
		}
	}

	var ready []ids.StepID
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []ids.StepID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, succ := range sortedSuccessors(successors[id]) {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	return order
}

func sortedSuccessors(succs []ids.StepID) []ids.StepID {
	out := append([]ids.StepID(nil), succs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParallelGroups partitions steps into ready-batches under Kahn's
// algorithm: every step in a batch depends only on steps from earlier
// batches, so steps within one batch may run concurrently (spec §3's
// "groups of mutually independent steps").
func ParallelGroups(steps []model.ExecutionStep) [][]ids.StepID {
	indegree := make(map[ids.StepID]int, len(steps))
	successors := make(map[ids.StepID][]ids.StepID, len(steps))
	for _, s := range steps {
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
		for _, pred := range s.Predecessors {
			indegree[s.ID]++
			successors[pred] = append(successors[pred], s.ID)
		}
	}

	var groups [][]ids.StepID
	var frontier []ids.StepID
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
		}
	}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
		groups = append(groups, frontier)

		var next []ids.StepID
		for _, id := range frontier {
			for _, succ := range successors[id] {
				indegree[succ]--
				if indegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}
	return groups
}
