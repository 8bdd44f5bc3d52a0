package raptor

import (
	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/model"
	"ridecast.dev/transit/repository"
)

func stopLocation(repo *repository.Repository, stopIx int) Location {
	return NewStopLocation(repo.Stops[stopIx].ID)
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

// lastSetRound finds the most recent round at or below upTo in which
// boarding[r][stop] was actually written. A stop's roundArrival value
// is copied forward every round once reached, but its boarding entry
// is only recorded in the round that first produced it — so a
// reconstruction walk that just decremented the round by one could
// land on a blank entry for a stop reached several rounds earlier.
// Returns 0 if no round in range set it, meaning the stop was a
// seeded endpoint rather than something discovered mid-search.
func lastSetRound(scratch *Scratch, stop, upTo int) int {
	for r := upTo; r >= 1; r-- {
		if scratch.boarding[r][stop].kind != boardingNone {
			return r
		}
	}
	return 0
}

func transitLeg(repo *repository.Repository, opts Options, routeIx, tripIx, boardStopIx, alightStopIx int) Leg {
	route := repo.Routes[routeIx]
	trip := repo.Trips[routeIx][tripIx]
	boardPos := indexOf(route.StopIxs, boardStopIx)
	alightPos := indexOf(route.StopIxs, alightStopIx)

	var intermediate []IntermediateStop
	for p := boardPos + 1; p < alightPos; p++ {
		st := trip.StopTimes[p]
		intermediate = append(intermediate, IntermediateStop{
			StopIx:            route.StopIxs[p],
			Arrival:           st.Arrival,
			Departure:         st.Departure,
			ShapeDistTraveled: st.ShapeDistTraveled,
			HasShapeDist:      st.HasShapeDist,
		})
	}

	var shapes []model.ShapePoint
	if opts.IncludeShapes && trip.ShapeID != "" {
		shapes = repo.ShapePoints[trip.ShapeID]
	}

	return Leg{
		Kind:         LegTransit,
		From:         stopLocation(repo, boardStopIx),
		To:           stopLocation(repo, alightStopIx),
		Depart:       trip.StopTimes[boardPos].Departure,
		Arrive:       trip.StopTimes[alightPos].Arrival,
		Mode:         route.Mode,
		Headsign:     trip.Headsign,
		ShortName:    route.ShortName,
		LongName:     route.LongName,
		Intermediate: intermediate,
		Shapes:       shapes,
	}
}

// reconstructForward walks the forward boarding table backward from
// the best (round, target) pair to build an Itinerary in chronological
// order, per spec §4.4.6's tie-break (earliest arrival, then fewest
// rounds) and §4.4.7's access/egress leg wrapping.
func reconstructForward(repo *repository.Repository, scratch *Scratch, sources, targets []candidate, fromLoc, toLoc Location, roundsRun int, opts Options) (*Itinerary, error) {
	bestRound := -1
	bestTarget := -1
	best := infinity
	for r := 0; r <= roundsRun; r++ {
		for ti, t := range targets {
			v := scratch.roundArrival[r][t.StopIx]
			if v >= infinity {
				continue
			}
			arr := v + gtfstime.TimeOfDay(t.WalkSecs)
			if arr < best {
				best = arr
				bestRound = r
				bestTarget = ti
			}
		}
	}
	if bestRound == -1 {
		return nil, routingErr(NoRouteFound, "no itinerary found within %d rounds", roundsRun)
	}
	target := targets[bestTarget]

	cur := target.StopIx
	curRound := bestRound
	var revLegs []Leg

	for {
		entry := scratch.boarding[curRound][cur]
		if entry.kind == boardingNone {
			if curRound == 0 {
				break
			}
			curRound = lastSetRound(scratch, cur, curRound-1)
			continue
		}

		switch entry.kind {
		case boardingWalk:
			from := entry.fromStopIx
			revLegs = append(revLegs, Leg{
				Kind:   LegWalk,
				From:   stopLocation(repo, from),
				To:     stopLocation(repo, cur),
				Depart: scratch.roundArrival[curRound][from],
				Arrive: scratch.roundArrival[curRound][cur],
			})
			cur = from
			curRound = lastSetRound(scratch, cur, curRound)
		case boardingTransit:
			boardStopIx := entry.fromStopIx
			revLegs = append(revLegs, transitLeg(repo, opts, entry.routeIx, entry.tripIx, boardStopIx, cur))
			cur = boardStopIx
			curRound = lastSetRound(scratch, cur, curRound-1)
		}
	}

	var legs []Leg
	if fromLoc.Kind == LocationCoordinate {
		var walkSecs int
		for _, s := range sources {
			if s.StopIx == cur {
				walkSecs = s.WalkSecs
				break
			}
		}
		arrive := scratch.roundArrival[0][cur]
		depart := arrive - gtfstime.TimeOfDay(walkSecs)
		legs = append(legs, Leg{Kind: LegWalk, From: fromLoc, To: stopLocation(repo, cur), Depart: depart, Arrive: arrive})
	}
	for i := len(revLegs) - 1; i >= 0; i-- {
		legs = append(legs, revLegs[i])
	}
	if toLoc.Kind == LocationCoordinate {
		depart := scratch.roundArrival[bestRound][target.StopIx]
		arrive := depart + gtfstime.TimeOfDay(target.WalkSecs)
		legs = append(legs, Leg{Kind: LegWalk, From: stopLocation(repo, target.StopIx), To: toLoc, Depart: depart, Arrive: arrive})
	}

	return &Itinerary{From: fromLoc, To: toLoc, Legs: legs}, nil
}

// reconstructBackward walks the backward boarding table forward from
// the best (round, source) pair. Unlike reconstructForward it needs no
// reversal: scanRouteBackward's table already links each stop to the
// next one chronologically, so the walk produces legs in departure
// order directly.
func reconstructBackward(repo *repository.Repository, scratch *Scratch, sources, targets []candidate, fromLoc, toLoc Location, roundsRun int, opts Options) (*Itinerary, error) {
	bestRound := -1
	bestSource := -1
	best := negInfinity
	for r := 0; r <= roundsRun; r++ {
		for si, s := range sources {
			v := scratch.roundArrival[r][s.StopIx]
			if v <= negInfinity {
				continue
			}
			dep := v - gtfstime.TimeOfDay(s.WalkSecs)
			if dep > best {
				best = dep
				bestRound = r
				bestSource = si
			}
		}
	}
	if bestRound == -1 {
		return nil, routingErr(NoRouteFound, "no itinerary found within %d rounds", roundsRun)
	}
	source := sources[bestSource]

	cur := source.StopIx
	curRound := bestRound
	var legs []Leg

	if fromLoc.Kind == LocationCoordinate {
		arrive := scratch.roundArrival[bestRound][cur]
		depart := arrive - gtfstime.TimeOfDay(source.WalkSecs)
		legs = append(legs, Leg{Kind: LegWalk, From: fromLoc, To: stopLocation(repo, cur), Depart: depart, Arrive: arrive})
	}

	for {
		entry := scratch.boarding[curRound][cur]
		if entry.kind == boardingNone {
			if curRound == 0 {
				break
			}
			curRound = lastSetRound(scratch, cur, curRound-1)
			continue
		}

		switch entry.kind {
		case boardingWalk:
			to := entry.fromStopIx
			legs = append(legs, Leg{
				Kind:   LegWalk,
				From:   stopLocation(repo, cur),
				To:     stopLocation(repo, to),
				Depart: scratch.roundArrival[curRound][cur],
				Arrive: scratch.roundArrival[curRound][to],
			})
			cur = to
			curRound = lastSetRound(scratch, cur, curRound)
		case boardingTransit:
			alightStopIx := entry.fromStopIx
			legs = append(legs, transitLeg(repo, opts, entry.routeIx, entry.tripIx, cur, alightStopIx))
			cur = alightStopIx
			curRound = lastSetRound(scratch, cur, curRound-1)
		}
	}

	if toLoc.Kind == LocationCoordinate {
		var walkSecs int
		for _, t := range targets {
			if t.StopIx == cur {
				walkSecs = t.WalkSecs
				break
			}
		}
		depart := scratch.roundArrival[0][cur]
		arrive := depart + gtfstime.TimeOfDay(walkSecs)
		legs = append(legs, Leg{Kind: LegWalk, From: stopLocation(repo, cur), To: toLoc, Depart: depart, Arrive: arrive})
	}

	return &Itinerary{From: fromLoc, To: toLoc, Legs: legs}, nil
}
