package raptor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/index"
	"ridecast.dev/transit/repository"
)

// Solve runs one RAPTOR query: DepartAt finds the earliest arrival at
// `to` departing `from` no earlier than constraint.Time; ArriveBy
// finds the latest departure from `from` that still reaches `to` by
// constraint.Time. It acquires one Scratch from pool for the duration
// of the call.
func Solve(ctx context.Context, repo *repository.Repository, idx *index.Indices, pool *Pool, from, to Location, constraint Constraint, opts Options, walkSpeedMPS float64) (*Itinerary, error) {
	if repo == nil || idx == nil {
		return nil, routingErr(RepositoryUnavailable, "no dataset loaded")
	}
	opts = opts.withDefaults()

	scratch, err := pool.Acquire(ctx)
	if err != nil {
		return nil, routingErr(Timeout, "acquiring scratch slot: %v", err)
	}
	defer pool.Release(scratch)

	maxRounds := opts.MaxRounds
	if maxRounds > scratch.maxRounds {
		maxRounds = scratch.maxRounds
	}

	sources, rerr := resolveEndpoint(repo, idx, from, opts.MaxAccessEgressWalkM, walkSpeedMPS, true)
	if rerr != nil {
		return nil, rerr
	}
	targets, rerr := resolveEndpoint(repo, idx, to, opts.MaxAccessEgressWalkM, walkSpeedMPS, false)
	if rerr != nil {
		return nil, rerr
	}

	if constraint.Kind == DepartAt {
		return solveDepartAt(ctx, repo, scratch, sources, targets, from, to, constraint.Time, maxRounds, opts)
	}
	return solveArriveBy(ctx, repo, scratch, sources, targets, from, to, constraint.Time, maxRounds, opts)
}

// solveDepartAt implements the forward main loop of spec §4.4.4.
func solveDepartAt(ctx context.Context, repo *repository.Repository, scratch *Scratch, sources, targets []candidate, fromLoc, toLoc Location, departAt gtfstime.TimeOfDay, maxRounds int, opts Options) (*Itinerary, error) {
	for _, src := range sources {
		arr := departAt + gtfstime.TimeOfDay(src.WalkSecs)
		scratch.roundArrival[0][src.StopIx] = arr
		scratch.tryImproveBestArrival(src.StopIx, arr)
		scratch.mark(src.StopIx)
	}

	// A source reachable only by a footpath (not itself served by any
	// route, e.g. a stop with no routes of its own) needs that
	// transfer relaxed before round 1's route scan has anything to
	// queue from it — real RAPTOR treats the access walk as part of
	// round 0's setup, not something a later round's route scan
	// produces.
	if opts.AllowWalk {
		seeded := append([]int(nil), scratch.markedList...)
		extra := relaxFootpathsForward(repo, scratch, 0, opts.MaxTransferWalkM, seeded)
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
				scratch.queueRoute(ref.RouteIx, ref.Position)
			}
		}
		scratch.clearMarks()

		newlyMarked := scanRoutesForwardParallel(repo, scratch, round)

		if opts.AllowWalk {
			newlyMarked = relaxFootpathsForward(repo, scratch, round, opts.MaxTransferWalkM, newlyMarked)
		}

		for _, p := range newlyMarked {
			scratch.mark(p)
		}

		roundsRun = round
		if len(scratch.markedList) == 0 {
			break
		}
	}

	return reconstructForward(repo, scratch, sources, targets, fromLoc, toLoc, roundsRun, opts)
}

// scanRoutesForwardParallel scans every queued route, distributing
// routes across a small worker pool. Per-stop bestArrival updates use
// compare-and-swap (Scratch.tryImproveBestArrival); each worker
// accumulates its own newly-marked stops, unioned into the result only
// after every worker has joined (spec §9 "parallel route scan").
func scanRoutesForwardParallel(repo *repository.Repository, scratch *Scratch, round int) []int {
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
				scanRouteForward(repo, scratch, routeIx, startPos, round, &local)
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

// scanRouteForward walks one RAPTOR route forward from startPos,
// boarding the earliest feasible trip at each stop and recording any
// improved arrival, per spec §4.4.4 step 3.
func scanRouteForward(repo *repository.Repository, scratch *Scratch, routeIx, startPos, round int, localMarked *[]int) {
	route := repo.Routes[routeIx]
	trips := repo.Trips[routeIx]
	if len(trips) == 0 {
		return
	}

	tripIx := -1
	boardStopIx := -1

	for i := startPos; i < len(route.StopIxs); i++ {
		stopIx := route.StopIxs[i]

		if tripIx != -1 {
			arr := trips[tripIx].StopTimes[i].Arrival
			entry := boardingEntry{kind: boardingTransit, routeIx: routeIx, tripIx: tripIx, fromStopIx: boardStopIx}
			if scratch.recordArrivalIfBetter(round, stopIx, arr, entry) {
				*localMarked = append(*localMarked, stopIx)
			}
		}

		prev := scratch.roundArrival[round-1][stopIx]
		if prev >= infinity {
			continue
		}

		needsReboard := tripIx == -1
		if !needsReboard && prev <= trips[tripIx].StopTimes[i].Departure {
			needsReboard = true
		}
		if !needsReboard {
			continue
		}

		if found := earliestCatchableTrip(trips, i, prev); found >= 0 {
			tripIx = found
			boardStopIx = stopIx
		}
	}
}

// earliestCatchableTrip binary-searches trips (sorted by departure at
// column 0, and therefore at every column by the FIFO invariant) for
// the earliest trip whose departure at col is >= notBefore.
func earliestCatchableTrip(trips []repository.Trip, col int, notBefore gtfstime.TimeOfDay) int {
	i := sort.Search(len(trips), func(t int) bool {
		return trips[t].StopTimes[col].Departure >= notBefore
	})
	if i < len(trips) {
		return i
	}
	return -1
}

// relaxFootpathsForward implements spec §4.4.4 step 4: for every stop
// marked by the route scan, walk every outgoing transfer within
// maxTransferWalkM and improve the neighbor's arrival. Returns the
// full set of stops marked this round (route-scan marks plus any new
// footpath marks).
func relaxFootpathsForward(repo *repository.Repository, scratch *Scratch, round int, maxTransferWalkM float64, routeScanMarked []int) []int {
	marked := append([]int(nil), routeScanMarked...)
	for _, p := range routeScanMarked {
		for _, edge := range repo.Transfers[p] {
			if edge.ToStopIx == p {
				continue
			}
			if edge.Meters >= 0 && edge.Meters > maxTransferWalkM {
				continue
			}
			cand := scratch.roundArrival[round][p] + gtfstime.TimeOfDay(edge.Seconds)
			if scratch.tryImproveBestArrival(edge.ToStopIx, cand) {
				scratch.arrivalMu.Lock()
				scratch.roundArrival[round][edge.ToStopIx] = cand
				scratch.boarding[round][edge.ToStopIx] = boardingEntry{kind: boardingWalk, fromStopIx: p}
				scratch.arrivalMu.Unlock()
				marked = append(marked, edge.ToStopIx)
			}
		}
	}
	return marked
}
