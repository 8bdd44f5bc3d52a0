package raptor

import (
	"context"
	"sync"
	"sync/atomic"

	"ridecast.dev/transit/gtfstime"
)

// infinity stands in for "unreached" in arrival-time arrays. It is far
// larger than any real GTFS time (which rarely exceeds 48:00:00 /
// 172800s) but small enough that adding a transfer duration to it
// never overflows.
const infinity = gtfstime.TimeOfDay(1 << 30)

// negInfinity is backward search's "not yet reachable" sentinel: a
// latest-departure value so small no real candidate could lose to it.
const negInfinity = gtfstime.TimeOfDay(-(1 << 30))

type boardingKind int

const (
	boardingNone boardingKind = iota
	boardingTransit
	boardingWalk
)

// boardingEntry records how a stop was reached in one round: either by
// riding a trip from fromStopIx, or by walking from fromStopIx.
type boardingEntry struct {
	kind       boardingKind
	routeIx    int
	tripIx     int
	fromStopIx int
}

// Scratch is one query's working memory, pre-allocated to the size of
// the repository it was built for. Pool.Release clears it before
// returning it to the pool, and it is reused without reallocating.
type Scratch struct {
	numStops  int
	numRoutes int
	maxRounds int

	// bestArrival is accessed with atomic loads/CAS so a parallel
	// route scan can update it without a lock: updates must only ever
	// lower the value (arrival times are monotonically non-increasing
	// as rounds progress).
	bestArrival []int64

	roundArrival [][]gtfstime.TimeOfDay
	boarding     [][]boardingEntry

	marked     []bool
	markedList []int

	routeQueuePos  []int
	routeQueueList []int

	// arrivalMu guards roundArrival/boarding writes, which aren't
	// individually atomic-friendly (boardingEntry is a struct).
	// bestArrival's CAS is the fast-path check; arrivalMu is only held
	// for the handful of stops that actually improve in a round.
	arrivalMu sync.Mutex
}

func newScratch(numStops, numRoutes, maxRounds int) *Scratch {
	s := &Scratch{
		numStops:     numStops,
		numRoutes:    numRoutes,
		maxRounds:    maxRounds,
		bestArrival:  make([]int64, numStops),
		roundArrival: make([][]gtfstime.TimeOfDay, maxRounds+1),
		boarding:     make([][]boardingEntry, maxRounds+1),
		marked:        make([]bool, numStops),
		markedList:    make([]int, 0, numStops),
		routeQueuePos: make([]int, numRoutes),
	}
	for i := range s.routeQueuePos {
		s.routeQueuePos[i] = -1
	}
	for r := 0; r <= maxRounds; r++ {
		s.roundArrival[r] = make([]gtfstime.TimeOfDay, numStops)
		s.boarding[r] = make([]boardingEntry, numStops)
	}
	s.reset()
	return s
}

// reset clears a Scratch for reuse. It touches every element rather
// than reallocating, keeping the hot path allocation-free.
func (s *Scratch) reset() {
	for i := range s.bestArrival {
		atomic.StoreInt64(&s.bestArrival[i], int64(infinity))
		s.marked[i] = false
	}
	for r := range s.roundArrival {
		row := s.roundArrival[r]
		brow := s.boarding[r]
		for i := range row {
			row[i] = infinity
			brow[i] = boardingEntry{}
		}
	}
	s.markedList = s.markedList[:0]
	for i := range s.routeQueuePos {
		s.routeQueuePos[i] = -1
	}
	s.routeQueueList = s.routeQueueList[:0]
}

// mark records that stop p was updated this round, guarding against
// duplicate entries in markedList. Not safe to call concurrently; a
// parallel route scan accumulates into worker-local slices instead and
// unions them into markedList after joining (see solve.go).
func (s *Scratch) mark(p int) {
	if !s.marked[p] {
		s.marked[p] = true
		s.markedList = append(s.markedList, p)
	}
}

// clearMarks resets marked/markedList for the next round, touching
// only the stops that were actually marked rather than the whole
// array.
func (s *Scratch) clearMarks() {
	for _, p := range s.markedList {
		s.marked[p] = false
	}
	s.markedList = s.markedList[:0]
}

// queueRoute inserts (routeIx, pos) into the round's scan queue,
// keeping the earliest position if the route is already queued.
func (s *Scratch) queueRoute(routeIx, pos int) {
	if s.routeQueuePos[routeIx] == -1 {
		s.routeQueuePos[routeIx] = pos
		s.routeQueueList = append(s.routeQueueList, routeIx)
	} else if pos < s.routeQueuePos[routeIx] {
		s.routeQueuePos[routeIx] = pos
	}
}

// clearRouteQueue resets the scan queue between rounds.
func (s *Scratch) clearRouteQueue() {
	for _, r := range s.routeQueueList {
		s.routeQueuePos[r] = -1
	}
	s.routeQueueList = s.routeQueueList[:0]
}

// tryImproveBestArrival attempts to lower bestArrival[p] to candidate
// via a compare-and-swap loop, returning whether it won the race.
func (s *Scratch) tryImproveBestArrival(p int, candidate gtfstime.TimeOfDay) bool {
	for {
		old := atomic.LoadInt64(&s.bestArrival[p])
		if int64(candidate) >= old {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.bestArrival[p], old, int64(candidate)) {
			return true
		}
	}
}

func (s *Scratch) getBestArrival(p int) gtfstime.TimeOfDay {
	return gtfstime.TimeOfDay(atomic.LoadInt64(&s.bestArrival[p]))
}

// recordArrivalIfBetter improves bestArrival[p] and the round's
// roundArrival/boarding entry together under arrivalMu, so a losing
// worker can never observe the CAS win and then overwrite the winner's
// roundArrival/boarding entry with a worse one: unlike a bare CAS on
// bestArrival followed by a separately-locked write, the compare and
// the write happen as one critical section.
func (s *Scratch) recordArrivalIfBetter(round, p int, candidate gtfstime.TimeOfDay, entry boardingEntry) bool {
	s.arrivalMu.Lock()
	defer s.arrivalMu.Unlock()
	if int64(candidate) >= atomic.LoadInt64(&s.bestArrival[p]) {
		return false
	}
	atomic.StoreInt64(&s.bestArrival[p], int64(candidate))
	s.roundArrival[round][p] = candidate
	s.boarding[round][p] = entry
	return true
}

// tryImproveBestDeparture is tryImproveBestArrival's mirror for
// backward (ArriveBy) search: it raises bestArrival[p] to candidate,
// since a backward scan maximizes the latest feasible departure rather
// than minimizing arrival. The two directions never share a Scratch at
// the same time, so reusing the same backing array is safe.
func (s *Scratch) tryImproveBestDeparture(p int, candidate gtfstime.TimeOfDay) bool {
	for {
		old := atomic.LoadInt64(&s.bestArrival[p])
		if int64(candidate) <= old {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.bestArrival[p], old, int64(candidate)) {
			return true
		}
	}
}

// recordDepartureIfBetter is recordArrivalIfBetter's mirror for
// backward search: it raises bestArrival[p] (standing in for latest
// departure) and writes roundArrival/boarding under the same lock,
// closing the same CAS-then-separate-lock race for scanRouteBackward.
func (s *Scratch) recordDepartureIfBetter(round, p int, candidate gtfstime.TimeOfDay, entry boardingEntry) bool {
	s.arrivalMu.Lock()
	defer s.arrivalMu.Unlock()
	if int64(candidate) <= atomic.LoadInt64(&s.bestArrival[p]) {
		return false
	}
	atomic.StoreInt64(&s.bestArrival[p], int64(candidate))
	s.roundArrival[round][p] = candidate
	s.boarding[round][p] = entry
	return true
}

// prepareBackward re-initializes the sentinels reset() left at +infinity
// to backward search's -infinity, since a freshly acquired Scratch is
// always in forward-search's reset state regardless of which direction
// last used it.
func (s *Scratch) prepareBackward() {
	for i := range s.bestArrival {
		atomic.StoreInt64(&s.bestArrival[i], int64(negInfinity))
	}
	row0 := s.roundArrival[0]
	for i := range row0 {
		row0[i] = negInfinity
	}
}

// queueRouteMax is queueRoute's mirror for backward search: a backward
// route scan starts from the rightmost (latest) marked position on the
// route and walks left, so the queue keeps the maximum position rather
// than the minimum.
func (s *Scratch) queueRouteMax(routeIx, pos int) {
	if s.routeQueuePos[routeIx] == -1 {
		s.routeQueuePos[routeIx] = pos
		s.routeQueueList = append(s.routeQueueList, routeIx)
	} else if pos > s.routeQueuePos[routeIx] {
		s.routeQueuePos[routeIx] = pos
	}
}

// Pool is a fixed-size, semaphore-guarded ring of pre-allocated
// Scratch buffers, sized for one repository's stop/route counts.
type Pool struct {
	slots chan *Scratch
}

// NewPool allocates count Scratch buffers up front, sized for a
// repository with numStops stops and numRoutes routes, supporting up
// to maxRounds RAPTOR rounds.
func NewPool(count, numStops, numRoutes, maxRounds int) *Pool {
	p := &Pool{slots: make(chan *Scratch, count)}
	for i := 0; i < count; i++ {
		p.slots <- newScratch(numStops, numRoutes, maxRounds)
	}
	return p
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Scratch, error) {
	select {
	case s := <-p.slots:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireNonBlocking returns ErrScratchPoolExhausted immediately if
// every slot is in use.
func (p *Pool) AcquireNonBlocking() (*Scratch, error) {
	select {
	case s := <-p.slots:
		return s, nil
	default:
		return nil, ErrScratchPoolExhausted
	}
}

// Release clears s and returns it to the pool.
func (p *Pool) Release(s *Scratch) {
	s.reset()
	p.slots <- s
}

// workerPanic carries a recovered panic value across goroutines so the
// caller of a parallel route scan can re-panic on its own stack once
// every worker has joined. A worker that panics mid-scan still returns
// via its deferred wg.Done(), so the scan's own Scratch is returned to
// the pool through the caller's normal defer pool.Release(scratch) —
// the panic never leaves a slot stuck outside the pool.
type workerPanic struct {
	value any
}

// recoverWorkerPanic is deferred first in every route-scan worker
// goroutine. It records (rather than swallows) a panic so the scan's
// caller can re-raise it after wg.Wait() returns, keeping one worker's
// crash from silently losing the others' results or hanging a
// still-running sibling.
func recoverWorkerPanic(slot *atomic.Pointer[workerPanic]) {
	if r := recover(); r != nil {
		slot.CompareAndSwap(nil, &workerPanic{value: r})
	}
}
