package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ridecast.dev/transit/model"
)

// SQLiteConfig configures the on-disk/in-memory SQLite backend.
type SQLiteConfig struct {
	// OnDisk stores the feed cache under Directory/gtfs.db. When
	// false, an ephemeral :memory: database is used (useful for
	// tests and short-lived processes).
	OnDisk    bool
	Directory string
}

// SQLiteStorage is a Storage implementation backed by SQLite. It is
// the CLI's default backend, caching repeatedly-fetched archives
// across process restarts.
type SQLiteStorage struct {
	cfg SQLiteConfig
	db  *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	c := SQLiteConfig{}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	source := ":memory:"
	if c.OnDisk {
		source = c.Directory + "/gtfs.db"
	}

	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStorage{cfg: c, db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS feed_metadata (
    url TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    timezone TEXT NOT NULL,
    feed_start_date TEXT NOT NULL,
    feed_end_date TEXT NOT NULL,
    calendar_start_date TEXT NOT NULL,
    calendar_end_date TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (url, sha256)
);

CREATE TABLE IF NOT EXISTS agency (
    sha256 TEXT NOT NULL, id TEXT NOT NULL, name TEXT NOT NULL, url TEXT NOT NULL, timezone TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stop (
    sha256 TEXT NOT NULL, id TEXT NOT NULL, code TEXT NOT NULL, name TEXT NOT NULL, desc TEXT NOT NULL,
    lat REAL NOT NULL, lon REAL NOT NULL, url TEXT NOT NULL, location_type INTEGER NOT NULL,
    parent_station TEXT NOT NULL, platform_code TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stop_sha ON stop (sha256);
CREATE TABLE IF NOT EXISTS route (
    sha256 TEXT NOT NULL, id TEXT NOT NULL, agency_id TEXT NOT NULL, short_name TEXT NOT NULL,
    long_name TEXT NOT NULL, desc TEXT NOT NULL, type INTEGER NOT NULL, url TEXT NOT NULL,
    color TEXT NOT NULL, text_color TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trip (
    sha256 TEXT NOT NULL, id TEXT NOT NULL, route_id TEXT NOT NULL, service_id TEXT NOT NULL,
    headsign TEXT NOT NULL, short_name TEXT NOT NULL, direction_id INTEGER NOT NULL, shape_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stop_time (
    sha256 TEXT NOT NULL, trip_id TEXT NOT NULL, stop_id TEXT NOT NULL, headsign TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL, arrival TEXT NOT NULL, departure TEXT NOT NULL,
    shape_dist_traveled REAL NOT NULL, has_shape_dist INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stop_time_sha_trip ON stop_time (sha256, trip_id);
CREATE TABLE IF NOT EXISTS calendar (
    sha256 TEXT NOT NULL, service_id TEXT NOT NULL, start_date TEXT NOT NULL, end_date TEXT NOT NULL, weekday INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS calendar_date (
    sha256 TEXT NOT NULL, service_id TEXT NOT NULL, date TEXT NOT NULL, exception_type INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS transfer (
    sha256 TEXT NOT NULL, from_stop_id TEXT NOT NULL, to_stop_id TEXT NOT NULL, min_transfer_secs INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS shape_point (
    sha256 TEXT NOT NULL, shape_id TEXT NOT NULL, lat REAL NOT NULL, lon REAL NOT NULL,
    sequence INTEGER NOT NULL, dist_traveled REAL NOT NULL, has_dist INTEGER NOT NULL
);
`

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `SELECT url, sha256, retrieved_at, updated_at, timezone, feed_start_date, feed_end_date,
                     calendar_start_date, calendar_end_date, max_arrival, max_departure
              FROM feed_metadata WHERE 1=1`
	args := []interface{}{}
	if filter.URL != "" {
		query += " AND url = ?"
		args = append(args, filter.URL)
	}
	if filter.SHA256 != "" {
		query += " AND sha256 = ?"
		args = append(args, filter.SHA256)
	}
	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		m := &FeedMetadata{}
		if err := rows.Scan(
			&m.URL, &m.SHA256, &m.RetrievedAt, &m.UpdatedAt, &m.Timezone,
			&m.FeedStartDate, &m.FeedEndDate, &m.CalendarStartDate, &m.CalendarEndDate,
			&m.MaxArrival, &m.MaxDeparture,
		); err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, m)
	}
	return feeds, rows.Err()
}

func (s *SQLiteStorage) WriteFeedMetadata(m *FeedMetadata) error {
	if m.RetrievedAt.IsZero() {
		m.RetrievedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.RetrievedAt
	}
	_, err := s.db.Exec(`
        INSERT INTO feed_metadata
            (url, sha256, retrieved_at, updated_at, timezone, feed_start_date, feed_end_date,
             calendar_start_date, calendar_end_date, max_arrival, max_departure)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(url, sha256) DO UPDATE SET
            updated_at=excluded.updated_at, timezone=excluded.timezone,
            feed_start_date=excluded.feed_start_date, feed_end_date=excluded.feed_end_date,
            calendar_start_date=excluded.calendar_start_date, calendar_end_date=excluded.calendar_end_date,
            max_arrival=excluded.max_arrival, max_departure=excluded.max_departure
        `,
		m.URL, m.SHA256, m.RetrievedAt, m.UpdatedAt, m.Timezone, m.FeedStartDate, m.FeedEndDate,
		m.CalendarStartDate, m.CalendarEndDate, m.MaxArrival, m.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteFeedMetadata(url string, sha256 string) error {
	res, err := s.db.Exec(`DELETE FROM feed_metadata WHERE url = ? AND sha256 = ?`, url, sha256)
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("feed not found: %s %s", url, sha256)
	}
	return nil
}

func (s *SQLiteStorage) GetReader(sha256 string) (FeedReader, error) {
	return &sqliteFeed{db: s.db, sha256: sha256}, nil
}

func (s *SQLiteStorage) GetWriter(sha256 string) (FeedWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqliteFeed{db: s.db, tx: tx, sha256: sha256}, nil
}

// sqliteFeed implements both FeedWriter (while tx != nil) and
// FeedReader (queries always go straight to db) for a single feed.
type sqliteFeed struct {
	db     *sql.DB
	tx     *sql.Tx
	sha256 string
}

func (f *sqliteFeed) WriteAgency(a model.Agency) error {
	_, err := f.tx.Exec(`INSERT INTO agency (sha256, id, name, url, timezone) VALUES (?, ?, ?, ?, ?)`,
		f.sha256, a.ID, a.Name, a.URL, a.Timezone)
	return err
}

func (f *sqliteFeed) WriteStop(s model.Stop) error {
	_, err := f.tx.Exec(`
        INSERT INTO stop (sha256, id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sha256, s.ID, s.Code, s.Name, s.Desc, s.Lat, s.Lon, s.URL, int(s.LocationType), s.ParentStation, s.PlatformCode)
	return err
}

func (f *sqliteFeed) WriteRoute(r model.Route) error {
	_, err := f.tx.Exec(`
        INSERT INTO route (sha256, id, agency_id, short_name, long_name, desc, type, url, color, text_color)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sha256, r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, int(r.Type), r.URL, r.Color, r.TextColor)
	return err
}

func (f *sqliteFeed) BeginTrips() error { return nil }
func (f *sqliteFeed) WriteTrip(t model.Trip) error {
	_, err := f.tx.Exec(`
        INSERT INTO trip (sha256, id, route_id, service_id, headsign, short_name, direction_id, shape_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sha256, t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName, t.DirectionID, t.ShapeID)
	return err
}
func (f *sqliteFeed) EndTrips() error { return nil }

func (f *sqliteFeed) WriteCalendar(c model.Calendar) error {
	_, err := f.tx.Exec(`INSERT INTO calendar (sha256, service_id, start_date, end_date, weekday) VALUES (?, ?, ?, ?, ?)`,
		f.sha256, c.ServiceID, c.StartDate, c.EndDate, c.Weekday)
	return err
}

func (f *sqliteFeed) WriteCalendarDate(cd model.CalendarDate) error {
	_, err := f.tx.Exec(`INSERT INTO calendar_date (sha256, service_id, date, exception_type) VALUES (?, ?, ?, ?)`,
		f.sha256, cd.ServiceID, cd.Date, cd.ExceptionType)
	return err
}

func (f *sqliteFeed) BeginStopTimes() error { return nil }
func (f *sqliteFeed) WriteStopTime(st model.StopTime) error {
	_, err := f.tx.Exec(`
        INSERT INTO stop_time (sha256, trip_id, stop_id, headsign, stop_sequence, arrival, departure, shape_dist_traveled, has_shape_dist)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sha256, st.TripID, st.StopID, st.Headsign, st.StopSequence, st.Arrival, st.Departure, st.ShapeDistTraveled, st.HasShapeDist)
	return err
}
func (f *sqliteFeed) EndStopTimes() error { return nil }

func (f *sqliteFeed) WriteTransfer(t model.Transfer) error {
	_, err := f.tx.Exec(`INSERT INTO transfer (sha256, from_stop_id, to_stop_id, min_transfer_secs) VALUES (?, ?, ?, ?)`,
		f.sha256, t.FromStopID, t.ToStopID, t.MinTransferSecs)
	return err
}

func (f *sqliteFeed) WriteShapePoint(p model.ShapePoint) error {
	_, err := f.tx.Exec(`
        INSERT INTO shape_point (sha256, shape_id, lat, lon, sequence, dist_traveled, has_dist)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.sha256, p.ShapeID, p.Lat, p.Lon, p.Sequence, p.DistTraveled, p.HasDist)
	return err
}

func (f *sqliteFeed) Close() error {
	if f.tx == nil {
		return nil
	}
	return f.tx.Commit()
}

func (f *sqliteFeed) Agencies() ([]model.Agency, error) {
	rows, err := f.db.Query(`SELECT id, name, url, timezone FROM agency WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Agency
	for rows.Next() {
		var a model.Agency
		if err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) Stops() ([]model.Stop, error) {
	rows, err := f.db.Query(`SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code FROM stop WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stop
	for rows.Next() {
		var s model.Stop
		var lt int
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Desc, &s.Lat, &s.Lon, &s.URL, &lt, &s.ParentStation, &s.PlatformCode); err != nil {
			return nil, err
		}
		s.LocationType = model.LocationType(lt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) Routes() ([]model.Route, error) {
	rows, err := f.db.Query(`SELECT id, agency_id, short_name, long_name, desc, type, url, color, text_color FROM route WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Route
	for rows.Next() {
		var r model.Route
		var rt int
		if err := rows.Scan(&r.ID, &r.AgencyID, &r.ShortName, &r.LongName, &r.Desc, &rt, &r.URL, &r.Color, &r.TextColor); err != nil {
			return nil, err
		}
		r.Type = model.RouteType(rt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) Trips() ([]model.Trip, error) {
	rows, err := f.db.Query(`SELECT id, route_id, service_id, headsign, short_name, direction_id, shape_id FROM trip WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trip
	for rows.Next() {
		var t model.Trip
		if err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID, &t.ShapeID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) StopTimes() ([]model.StopTime, error) {
	rows, err := f.db.Query(`SELECT trip_id, stop_id, headsign, stop_sequence, arrival, departure, shape_dist_traveled, has_shape_dist FROM stop_time WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StopTime
	for rows.Next() {
		var st model.StopTime
		if err := rows.Scan(&st.TripID, &st.StopID, &st.Headsign, &st.StopSequence, &st.Arrival, &st.Departure, &st.ShapeDistTraveled, &st.HasShapeDist); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) Calendars() ([]model.Calendar, error) {
	rows, err := f.db.Query(`SELECT service_id, start_date, end_date, weekday FROM calendar WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Calendar
	for rows.Next() {
		var c model.Calendar
		if err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate, &c.Weekday); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) CalendarDates() ([]model.CalendarDate, error) {
	rows, err := f.db.Query(`SELECT service_id, date, exception_type FROM calendar_date WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CalendarDate
	for rows.Next() {
		var cd model.CalendarDate
		if err := rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType); err != nil {
			return nil, err
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) Transfers() ([]model.Transfer, error) {
	rows, err := f.db.Query(`SELECT from_stop_id, to_stop_id, min_transfer_secs FROM transfer WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transfer
	for rows.Next() {
		var t model.Transfer
		if err := rows.Scan(&t.FromStopID, &t.ToStopID, &t.MinTransferSecs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (f *sqliteFeed) ShapePoints() ([]model.ShapePoint, error) {
	rows, err := f.db.Query(`SELECT shape_id, lat, lon, sequence, dist_traveled, has_dist FROM shape_point WHERE sha256 = ?`, f.sha256)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ShapePoint
	for rows.Next() {
		var p model.ShapePoint
		if err := rows.Scan(&p.ShapeID, &p.Lat, &p.Lon, &p.Sequence, &p.DistTraveled, &p.HasDist); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
