package model

import "github.com/koustreak/dbspec/internal/errs"

// TopoSort orders keys so that every key follows the keys it depends on.
// Ties keep the input order. deps may return keys outside the input set;
// those are ignored. A cycle is reported as a synthesis error naming one of
// the keys on it.
func TopoSort(keys []Key, deps func(Key) []Key) ([]Key, error) {
	index := make(map[Key]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	indegree := make([]int, len(keys))
	dependents := make([][]int, len(keys))
	for i, k := range keys {
		for _, d := range deps(k) {
			j, ok := index[d]
			if !ok || j == i {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	out := make([]Key, 0, len(keys))
	done := make([]bool, len(keys))
	for len(out) < len(keys) {
		progressed := false
		for i := range keys {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			out = append(out, keys[i])
			for _, j := range dependents[i] {
				indegree[j]--
			}
			break
		}
		if !progressed {
			for i := range keys {
				if !done[i] {
					return nil, errs.Keyed(errs.ErrKindSynthesis, keys[i].String(), "dependency cycle")
				}
			}
		}
	}
	return out, nil
}
