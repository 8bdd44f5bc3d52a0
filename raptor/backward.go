package raptor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/repository"
)

// solveArriveBy implements spec §4.4.5's backward main loop: the
// search runs the same round structure as DepartAt but in the opposite
// direction, seeding from the egress side and discovering how late a
// traveller may leave an access candidate and still arrive by the
// constraint time. It is kept as its own independent implementation
// rather than a parameterized variant of solveDepartAt: the sentinel,
// comparison, and scan-direction all flip, and threading that through
// shared code risks mixing up min/max semantics in a way a reader
// cannot easily spot.
func solveArriveBy(ctx context.Context, repo *repository.Repository, scratch *Scratch, sources, targets []candidate, fromLoc, toLoc Location, arriveBy gtfstime.TimeOfDay, maxRounds int, opts Options) (*Itinerary, error) {
	scratch.prepareBackward()

	for _, dst := range targets {
		deadline := arriveBy - gtfstime.TimeOfDay(dst.WalkSecs)
		scratch.roundArrival[0][dst.StopIx] = deadline
		scratch.tryImproveBestDeparture(dst.StopIx, deadline)
		scratch.mark(dst.StopIx)
	}

	if opts.AllowWalk {
		seeded := append([]int(nil), scratch.markedList...)
		extra := relaxFootpathsBackward(repo, scratch, 0, opts.MaxTransferWalkM, seeded)
		for _, p := range extra {
			scratch.mark(p)
		}
	}

	roundsRun := 0
	for round := 1; round <= maxRounds; round++ {
		select {
		case <-ctx.Done():
			return nil, routingErr(Timeout, "cancelled after round %d", round-1)
		default:
		}

		copy(scratch.roundArrival[round], scratch.roundArrival[round-1])

		scratch.clearRouteQueue()
		for _, p := range scratch.markedList {
			for _, ref := range repo.RoutesAtStop[p] {
				scratch.queueRouteMax(ref.RouteIx, ref.Position)
			}
		}
		scratch.clearMarks()

		newlyMarked := scanRoutesBackwardParallel(repo, scratch, round)

		if opts.AllowWalk {
			newlyMarked = relaxFootpathsBackward(repo, scratch, round, opts.MaxTransferWalkM, newlyMarked)
		}

		for _, p := range newlyMarked {
			scratch.mark(p)
		}

		roundsRun = round
		if len(scratch.markedList) == 0 {
			break
		}
	}

	return reconstructBackward(repo, scratch, sources, targets, fromLoc, toLoc, roundsRun, opts)
}

// scanRoutesBackwardParallel mirrors scanRoutesForwardParallel: each
// worker scans its slice of queued routes backward and accumulates its
// own newly-marked stops, unioned only after every worker joins.
func scanRoutesBackwardParallel(repo *repository.Repository, scratch *Scratch, round int) []int {
	routes := scratch.routeQueueList
	if len(routes) == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(routes) {
		workers = len(routes)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]int, workers)
	var wg sync.WaitGroup
	var panicked atomic.Pointer[workerPanic]
	chunk := (len(routes) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(routes) {
			break
		}
		hi := lo + chunk
		if hi > len(routes) {
			hi = len(routes)
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			defer recoverWorkerPanic(&panicked)
			var local []int
			for _, routeIx := range routes[lo:hi] {
				startPos := scratch.routeQueuePos[routeIx]
				scanRouteBackward(repo, scratch, routeIx, startPos, round, &local)
			}
			results[w] = local
		}(w, lo, hi)
	}
	wg.Wait()
	if p := panicked.Load(); p != nil {
		panic(p.value)
	}

	var all []int
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// scanRouteBackward walks one RAPTOR route backward from startPos
// (the rightmost marked position), alighting at the latest feasible
// trip found ahead and recording any improved (later) departure at
// each earlier stop. It mirrors scanRouteForward stop for stop, with
// every comparison and search direction reversed.
//
// boarding[round][stopIx].fromStopIx is repurposed here: for an entry
// produced by this function it names the stop the rider ALIGHTS at
// (discovered earlier in the backward walk), not the stop boarded
// from. reconstructBackward knows the convention and reads it that
// way only for table rows written by a backward search.
func scanRouteBackward(repo *repository.Repository, scratch *Scratch, routeIx, startPos, round int, localMarked *[]int) {
	route := repo.Routes[routeIx]
	trips := repo.Trips[routeIx]
	if len(trips) == 0 {
		return
	}

	tripIx := -1
	alightStopIx := -1

	for i := startPos; i >= 0; i-- {
		stopIx := route.StopIxs[i]

		if tripIx != -1 {
			dep := trips[tripIx].StopTimes[i].Departure
			entry := boardingEntry{kind: boardingTransit, routeIx: routeIx, tripIx: tripIx, fromStopIx: alightStopIx}
			if scratch.recordDepartureIfBetter(round, stopIx, dep, entry) {
				*localMarked = append(*localMarked, stopIx)
			}
		}

		prev := scratch.roundArrival[round-1][stopIx]
		if prev <= negInfinity {
			continue
		}

		needsReboard := tripIx == -1
		if !needsReboard && prev >= trips[tripIx].StopTimes[i].Arrival {
			needsReboard = true
		}
		if !needsReboard {
			continue
		}

		if found := latestCatchableTrip(trips, i, prev); found >= 0 {
			tripIx = found
			alightStopIx = stopIx
		}
	}
}

// latestCatchableTrip binary-searches trips (sorted ascending by
// arrival at col, by the FIFO invariant) for the latest trip whose
// arrival at col is no later than deadline.
func latestCatchableTrip(trips []repository.Trip, col int, deadline gtfstime.TimeOfDay) int {
	i := sort.Search(len(trips), func(t int) bool {
		return trips[t].StopTimes[col].Arrival > deadline
	})
	if i > 0 {
		return i - 1
	}
	return -1
}

// relaxFootpathsBackward mirrors relaxFootpathsForward: for every stop
// q marked this round, every transfer edge q->neighbor means neighbor
// could depart edge.Seconds before q's deadline and still make it.
// Transfer edges are built symmetric (repository.buildTransfers), so
// walking q's own outgoing edges reaches every stop with an edge into
// q without needing a separate reverse index.
func relaxFootpathsBackward(repo *repository.Repository, scratch *Scratch, round int, maxTransferWalkM float64, routeScanMarked []int) []int {
	marked := append([]int(nil), routeScanMarked...)
	for _, q := range routeScanMarked {
		for _, edge := range repo.Transfers[q] {
			if edge.ToStopIx == q {
				continue
			}
			if edge.Meters >= 0 && edge.Meters > maxTransferWalkM {
				continue
			}
			cand := scratch.roundArrival[round][q] - gtfstime.TimeOfDay(edge.Seconds)
			if scratch.tryImproveBestDeparture(edge.ToStopIx, cand) {
				scratch.arrivalMu.Lock()
				scratch.roundArrival[round][edge.ToStopIx] = cand
				scratch.boarding[round][edge.ToStopIx] = boardingEntry{kind: boardingWalk, fromStopIx: q}
				scratch.arrivalMu.Unlock()
				marked = append(marked, edge.ToStopIx)
			}
		}
	}
	return marked
}
