package sim

import (
	"sync"
	"sync/atomic"
)

// parallelDistanceThreshold is the tower-count above which distance
// computation fans out across goroutines instead of running in one loop,
// mirroring controller/direct.go's concurrent-dial pattern — there, every
// resolved IP got its own dial goroutine racing for the first connection;
// here, every tower gets its own goroutine computing one independent
// distance, and the caller collects all of them before picking the min.
const parallelDistanceThreshold = 8

type towerDistance struct {
	id   TowerID
	dist float64
}

// computeDistances returns the distance from (x, y) to every tower in ids,
// using a worker goroutine per tower once the candidate set is large enough
// to be worth the fan-out cost.
func computeDistances(towers map[TowerID]*Tower, ids []TowerID, x, y float64) []towerDistance {
	out := make([]towerDistance, len(ids))

	if len(ids) < parallelDistanceThreshold {
		for i, id := range ids {
			out[i] = towerDistance{id: id, dist: towers[id].distanceTo(x, y)}
		}
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for i, id := range ids {
		go func(i int, id TowerID) {
			defer wg.Done()
			out[i] = towerDistance{id: id, dist: towers[id].distanceTo(x, y)}
		}(i, id)
	}
	wg.Wait()
	return out
}

// tieBreaker round-robins among towers that are exactly equidistant, so
// repeated attachment decisions don't always favor the lowest-ID tower —
// the same fairness goal as controller/roundrobin.go's atomic counter over
// a rule's target list.
type tieBreaker struct {
	counter uint64
}

func (t *tieBreaker) pick(tied []towerDistance) towerDistance {
	if len(tied) == 1 {
		return tied[0]
	}
	idx := atomic.AddUint64(&t.counter, 1) % uint64(len(tied))
	return tied[idx]
}

// nearest finds the minimum-distance tower, breaking exact ties via tb.
func nearest(distances []towerDistance, tb *tieBreaker) (towerDistance, bool) {
	if len(distances) == 0 {
		return towerDistance{}, false
	}
	min := distances[0].dist
	for _, d := range distances[1:] {
		if d.dist < min {
			min = d.dist
		}
	}
	var tied []towerDistance
	for _, d := range distances {
		if d.dist == min {
			tied = append(tied, d)
		}
	}
	return tb.pick(tied), true
}
