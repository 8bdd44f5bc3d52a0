package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/model"
	"ridecast.dev/transit/storage"
)

// BuildOptions configures footpath derivation. Zero values fall back
// to the spec's defaults.
type BuildOptions struct {
	WalkSpeedMPS    float64
	FootpathRadiusM float64
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.WalkSpeedMPS <= 0 {
		o.WalkSpeedMPS = geo.DefaultWalkSpeedMPS
	}
	if o.FootpathRadiusM <= 0 {
		o.FootpathRadiusM = 400
	}
	return o
}

// BuildResult wraps a freshly built Repository together with the
// non-fatal problems noticed along the way (dangling references,
// dropped FIFO-violating trips). The build only fails outright when
// the feed has no usable stops or trips.
type BuildResult struct {
	Repository *Repository
	Warnings   []string
}

// Build assembles a Repository from the raw records staged by a
// storage.FeedReader, per the seven-step algorithm: ingest primitives,
// assemble per-trip stop sequences, canonicalize into RAPTOR routes,
// sort and FIFO-filter trips, invert routes-at-stop, derive footpath
// transfers, and (left to the caller, see package index) build the
// fuzzy/spatial indices over the result.
func Build(reader storage.FeedReader, opts BuildOptions) (*BuildResult, error) {
	opts = opts.withDefaults()

	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	rawAgencies, err := reader.Agencies()
	if err != nil {
		return nil, errors.Wrap(err, "reading agencies")
	}
	rawStops, err := reader.Stops()
	if err != nil {
		return nil, errors.Wrap(err, "reading stops")
	}
	rawRoutes, err := reader.Routes()
	if err != nil {
		return nil, errors.Wrap(err, "reading routes")
	}
	rawTrips, err := reader.Trips()
	if err != nil {
		return nil, errors.Wrap(err, "reading trips")
	}
	rawStopTimes, err := reader.StopTimes()
	if err != nil {
		return nil, errors.Wrap(err, "reading stop_times")
	}
	rawCalendars, err := reader.Calendars()
	if err != nil {
		return nil, errors.Wrap(err, "reading calendars")
	}
	rawCalendarDates, err := reader.CalendarDates()
	if err != nil {
		return nil, errors.Wrap(err, "reading calendar_dates")
	}
	rawTransfers, err := reader.Transfers()
	if err != nil {
		return nil, errors.Wrap(err, "reading transfers")
	}
	rawShapePoints, err := reader.ShapePoints()
	if err != nil {
		return nil, errors.Wrap(err, "reading shape_points")
	}

	repo := &Repository{
		StopIndex:     map[string]int{},
		AreaIndex:     map[string]int{},
		Calendars:     map[string]model.Calendar{},
		CalendarDates: map[string][]model.CalendarDate{},
		ShapePoints:   map[string][]model.ShapePoint{},
	}

	// GTFS requires every agency in a feed to share one timezone; take
	// the first declared one as the feed's reference timezone for
	// service-day arithmetic.
	if len(rawAgencies) > 0 {
		repo.Timezone = rawAgencies[0].Timezone
	}

	// Step 1: ingest primitives into keyed maps, splitting stops into
	// routable Stops and grouping Areas (stations).
	stopByID := map[string]model.Stop{}
	for _, s := range rawStops {
		stopByID[s.ID] = s
	}

	childrenOf := map[string][]string{}
	for _, s := range rawStops {
		if s.LocationType == model.LocationTypeStop && s.ParentStation != "" {
			childrenOf[s.ParentStation] = append(childrenOf[s.ParentStation], s.ID)
		}
	}

	for _, s := range rawStops {
		if s.LocationType != model.LocationTypeStop {
			continue
		}
		repo.StopIndex[s.ID] = len(repo.Stops)
		repo.Stops = append(repo.Stops, Stop{
			ID:            s.ID,
			Name:          s.Name,
			Code:          s.Code,
			Coord:         geo.Coordinate{Lat: s.Lat, Lon: s.Lon},
			ParentStation: s.ParentStation,
			PlatformCode:  s.PlatformCode,
		})
	}

	for _, s := range rawStops {
		if s.LocationType != model.LocationTypeStation {
			continue
		}

		var childIxs []int
		for _, childID := range childrenOf[s.ID] {
			if ix, ok := repo.StopIndex[childID]; ok {
				childIxs = append(childIxs, ix)
			}
		}

		coord := geo.Coordinate{Lat: s.Lat, Lon: s.Lon}
		if coord.Lat == 0 && coord.Lon == 0 && len(childIxs) > 0 {
			coord = centroid(repo, childIxs)
		}

		repo.AreaIndex[s.ID] = len(repo.Areas)
		repo.Areas = append(repo.Areas, Area{
			ID:           s.ID,
			Name:         s.Name,
			Coord:        coord,
			ChildStopIxs: childIxs,
		})
	}

	if len(repo.Stops) == 0 {
		return nil, errors.New("feed has no routable stops")
	}

	routeByID := map[string]model.Route{}
	for _, r := range rawRoutes {
		routeByID[r.ID] = r
	}

	tripByID := map[string]model.Trip{}
	for _, t := range rawTrips {
		tripByID[t.ID] = t
	}

	// Step 2: assemble per-trip stop sequences.
	stopTimesByTrip := map[string][]model.StopTime{}
	for _, st := range rawStopTimes {
		stopTimesByTrip[st.TripID] = append(stopTimesByTrip[st.TripID], st)
	}
	for tripID, sts := range stopTimesByTrip {
		sort.Slice(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
		stopTimesByTrip[tripID] = sts
	}

	// Step 3: canonicalize trips into RAPTOR routes, bucketed by
	// (gtfs_route_id, ordered stop index tuple).
	type bucketTrip struct {
		trip      Trip
		stopIxs   []int
	}
	bucketOf := map[string]int{} // bucket key -> route_ix
	bucketTrips := map[int][]bucketTrip{}

	tripIDs := make([]string, 0, len(tripByID))
	for id := range tripByID {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)

	for _, tripID := range tripIDs {
		t := tripByID[tripID]
		sts := stopTimesByTrip[tripID]
		if len(sts) < 2 {
			warn("trip '%s' has fewer than 2 stop_times, dropping", tripID)
			continue
		}

		stopIxs := make([]int, 0, len(sts))
		entries := make([]StopTimeEntry, 0, len(sts))
		ok := true
		for _, st := range sts {
			stopIx, found := repo.StopIndex[st.StopID]
			if !found {
				warn("trip '%s' references non-routable or unknown stop '%s', dropping trip", tripID, st.StopID)
				ok = false
				break
			}
			stopIxs = append(stopIxs, stopIx)
			entries = append(entries, StopTimeEntry{
				Arrival:           st.ArrivalTime(),
				Departure:         st.DepartureTime(),
				ShapeDistTraveled: st.ShapeDistTraveled,
				HasShapeDist:      st.HasShapeDist,
			})
		}
		if !ok {
			continue
		}

		route, found := routeByID[t.RouteID]
		if !found {
			warn("trip '%s' references unknown route '%s', dropping trip", tripID, t.RouteID)
			continue
		}

		key := bucketKey(t.RouteID, stopIxs)
		routeIx, found := bucketOf[key]
		if !found {
			routeIx = len(repo.Routes)
			bucketOf[key] = routeIx
			repo.Routes = append(repo.Routes, Route{
				GTFSRouteID: t.RouteID,
				Mode:        route.Type,
				ShortName:   route.ShortName,
				LongName:    route.LongName,
				StopIxs:     stopIxs,
			})
		}

		bucketTrips[routeIx] = append(bucketTrips[routeIx], bucketTrip{
			trip: Trip{
				ID:        t.ID,
				ServiceID: t.ServiceID,
				Headsign:  t.Headsign,
				ShortName: t.ShortName,
				ShapeID:   t.ShapeID,
				StopTimes: entries,
			},
		})
	}

	// Step 4: sort trips by departure at position 0, drop any trip
	// that violates FIFO against the trips already kept.
	repo.Trips = make([][]Trip, len(repo.Routes))
	for routeIx, bts := range bucketTrips {
		sort.SliceStable(bts, func(i, j int) bool {
			return bts[i].trip.StopTimes[0].Departure < bts[j].trip.StopTimes[0].Departure
		})

		var kept []Trip
		for _, bt := range bts {
			if fifoCompatible(kept, bt.trip) {
				kept = append(kept, bt.trip)
			} else {
				warn("trip '%s' violates FIFO on route '%s', dropping", bt.trip.ID, repo.Routes[routeIx].GTFSRouteID)
			}
		}
		repo.Trips[routeIx] = kept
	}

	// Step 5: invert routes-at-stop.
	repo.RoutesAtStop = make([][]RouteStopRef, len(repo.Stops))
	for routeIx, route := range repo.Routes {
		seen := map[int]bool{}
		for pos, stopIx := range route.StopIxs {
			if seen[stopIx] {
				continue
			}
			seen[stopIx] = true
			repo.RoutesAtStop[stopIx] = append(repo.RoutesAtStop[stopIx], RouteStopRef{RouteIx: routeIx, Position: pos})
		}
	}

	// Step 6: derive footpath transfers and merge with declared ones.
	repo.Transfers = buildTransfers(repo, rawTransfers, opts)

	// Calendars / calendar_dates / shapes.
	for _, c := range rawCalendars {
		repo.Calendars[c.ServiceID] = c
	}
	for _, cd := range rawCalendarDates {
		repo.CalendarDates[cd.ServiceID] = append(repo.CalendarDates[cd.ServiceID], cd)
	}
	for _, p := range rawShapePoints {
		repo.ShapePoints[p.ShapeID] = append(repo.ShapePoints[p.ShapeID], p)
	}
	for shapeID, pts := range repo.ShapePoints {
		sort.Slice(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
		repo.ShapePoints[shapeID] = pts
	}

	if len(repo.Routes) == 0 {
		return nil, errors.New("feed produced no usable RAPTOR routes")
	}

	return &BuildResult{Repository: repo, Warnings: warnings}, nil
}

func centroid(repo *Repository, stopIxs []int) geo.Coordinate {
	var lat, lon float64
	for _, ix := range stopIxs {
		lat += repo.Stops[ix].Coord.Lat
		lon += repo.Stops[ix].Coord.Lon
	}
	n := float64(len(stopIxs))
	return geo.Coordinate{Lat: lat / n, Lon: lon / n}
}

func bucketKey(gtfsRouteID string, stopIxs []int) string {
	var b strings.Builder
	b.WriteString(gtfsRouteID)
	for _, ix := range stopIxs {
		b.WriteByte(0x1f)
		fmt.Fprintf(&b, "%d", ix)
	}
	return b.String()
}

// fifoCompatible reports whether candidate can be appended to kept
// (already FIFO-sorted by position-0 departure) without violating
// property 8.1.1: for every position, arrival times must be
// non-decreasing across trips in departure order.
func fifoCompatible(kept []Trip, candidate Trip) bool {
	if len(kept) == 0 {
		return true
	}
	prev := kept[len(kept)-1]
	for i := range candidate.StopTimes {
		if candidate.StopTimes[i].Arrival < prev.StopTimes[i].Arrival {
			return false
		}
		if candidate.StopTimes[i].Departure < prev.StopTimes[i].Departure {
			return false
		}
	}
	return true
}

func buildTransfers(repo *Repository, declared []model.Transfer, opts BuildOptions) [][]TransferEdge {
	adjacency := make(map[int]map[int]TransferEdge, len(repo.Stops)) // from -> to -> edge
	set := func(from, to, secs int, meters float64) {
		if adjacency[from] == nil {
			adjacency[from] = map[int]TransferEdge{}
		}
		if existing, ok := adjacency[from][to]; !ok || secs < existing.Seconds {
			adjacency[from][to] = TransferEdge{ToStopIx: to, Seconds: secs, Meters: meters}
		}
	}

	// Self transfers are always free.
	for ix := range repo.Stops {
		set(ix, ix, 0, 0)
	}

	// Derived footpaths from the spatial grid.
	grid := geo.NewGrid()
	for ix, s := range repo.Stops {
		grid.Insert(ix, s.Coord)
	}
	for fromIx, s := range repo.Stops {
		for _, near := range grid.Near(s.Coord, opts.FootpathRadiusM) {
			if near.ID == fromIx {
				continue
			}
			secs := geo.WalkSeconds(near.Meters, opts.WalkSpeedMPS)
			set(fromIx, near.ID, secs, near.Meters)
			set(near.ID, fromIx, secs, near.Meters)
		}
	}

	// Declared GTFS transfers win ties by taking the minimum with
	// whatever was derived; they carry no distance of their own. One
	// declared without a minimum time gets a walked-distance estimate.
	for _, t := range declared {
		fromIx, fOK := repo.StopIndex[t.FromStopID]
		toIx, tOK := repo.StopIndex[t.ToStopID]
		if !fOK || !tOK {
			continue
		}
		secs := t.MinTransferSecs
		if secs == 0 && fromIx != toIx {
			secs = geo.WalkSeconds(geo.Haversine(repo.Stops[fromIx].Coord, repo.Stops[toIx].Coord), opts.WalkSpeedMPS)
		}
		set(fromIx, toIx, secs, -1)
		set(toIx, fromIx, secs, -1)
	}

	out := make([][]TransferEdge, len(repo.Stops))
	for from, tos := range adjacency {
		edges := make([]TransferEdge, 0, len(tos))
		for _, edge := range tos {
			edges = append(edges, edge)
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].ToStopIx < edges[j].ToStopIx })
		out[from] = edges
	}
	return out
}
