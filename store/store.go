// Package store records CTMRG runs in a sqlite database: the configuration of every run,
// the distance between corner spectra after every sweep, and the spectra themselves.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
)

const (
	tableRun      = "run"
	tableSweep    = "sweep"
	tableSpectrum = "spectrum"
)

// Sweep is the record of a completed sweep.
type Sweep struct {
	Sweep   int
	Elapsed time.Duration
	// Distance is the spectrum distance to the previous sweep, NaN for the first sweep.
	Distance float64
}

// DB is a database of runs.
type DB struct {
	Path string
	db   *sql.DB
}

// Open opens the database at dbPath, creating it if it does not exist.
func Open(dbPath string) (*DB, error) {
	db, err := newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &DB{Path: dbPath, db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// NewRun records a new run with the given configuration and returns its ID.
func (d *DB) NewRun(ctx context.Context, config string) (string, error) {
	id := uuid.NewString()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, created, config) VALUES (?, ?, ?)`, tableRun)
	if _, err := d.db.ExecContext(ctx, sqlStr, id, time.Now().UnixMicro(), config); err != nil {
		return "", errors.Wrap(err, "")
	}
	return id, nil
}

// Config returns the configuration of a run.
func (d *DB) Config(ctx context.Context, runID string) (string, error) {
	sqlStr := fmt.Sprintf(`SELECT config FROM %s WHERE id=?`, tableRun)
	var config string
	err := d.db.QueryRowContext(ctx, sqlStr, runID).Scan(&config)
	switch {
	case err == sql.ErrNoRows:
		return "", errors.Errorf("no run %s", runID)
	case err != nil:
		return "", errors.Wrap(err, "")
	default:
		return config, nil
	}
}

// AddSweep records a sweep of a run together with the corner spectra after it.
// spectra holds the four corner spectra of every site, in the order of sites.
func (d *DB) AddSweep(ctx context.Context, runID string, s Sweep, sites []ipeps.Coord, spectra [][4][]float64) error {
	if len(sites) != len(spectra) {
		return errors.Errorf("%d sites %d spectra", len(sites), len(spectra))
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := addSweep(ctx, tx, runID, s, sites, spectra); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func addSweep(ctx context.Context, tx *sql.Tx, runID string, s Sweep, sites []ipeps.Coord, spectra [][4][]float64) error {
	// sqlite stores NaN as NULL.
	var dist sql.NullFloat64
	if !math.IsNaN(s.Distance) {
		dist = sql.NullFloat64{Float64: s.Distance, Valid: true}
	}
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, sweep, elapsed, distance) VALUES (?, ?, ?, ?)`, tableSweep)
	if _, err := tx.ExecContext(ctx, sqlStr, runID, s.Sweep, s.Elapsed.Microseconds(), dist); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, s))
	}

	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, sweep, x, y, corner, i, v) VALUES (?, ?, ?, ?, ?, ?, ?)`, tableSpectrum)
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer stmt.Close()
	for i, c := range sites {
		for corner, spec := range spectra[i] {
			for j, v := range spec {
				if _, err := stmt.ExecContext(ctx, runID, s.Sweep, c.X, c.Y, corner, j, v); err != nil {
					return errors.Wrap(err, fmt.Sprintf("%v %d %d", c, corner, j))
				}
			}
		}
	}
	return nil
}

// Sweeps returns the sweeps of a run in order.
func (d *DB) Sweeps(ctx context.Context, runID string) ([]Sweep, error) {
	sqlStr := fmt.Sprintf(`SELECT sweep, elapsed, distance FROM %s WHERE run=? ORDER BY sweep`, tableSweep)
	rows, err := d.db.QueryContext(ctx, sqlStr, runID)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	sweeps := make([]Sweep, 0)
	for rows.Next() {
		var s Sweep
		var elapsed int64
		var dist sql.NullFloat64
		if err := rows.Scan(&s.Sweep, &elapsed, &dist); err != nil {
			return nil, errors.Wrap(err, "")
		}
		s.Elapsed = time.Duration(elapsed) * time.Microsecond
		s.Distance = math.NaN()
		if dist.Valid {
			s.Distance = dist.Float64
		}
		sweeps = append(sweeps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return sweeps, nil
}

// Spectra returns the corner spectra recorded after a sweep of a run, keyed by site.
func (d *DB) Spectra(ctx context.Context, runID string, sweep int) (map[ipeps.Coord][4][]float64, error) {
	sqlStr := fmt.Sprintf(`SELECT x, y, corner, v FROM %s WHERE run=? AND sweep=? ORDER BY x, y, corner, i`, tableSpectrum)
	rows, err := d.db.QueryContext(ctx, sqlStr, runID, sweep)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	spectra := make(map[ipeps.Coord][4][]float64)
	for rows.Next() {
		var c ipeps.Coord
		var corner int
		var v float64
		if err := rows.Scan(&c.X, &c.Y, &corner, &v); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if corner < 0 || corner >= 4 {
			return nil, errors.Errorf("corner %d", corner)
		}
		spec := spectra[c]
		spec[corner] = append(spec[corner], v)
		spectra[c] = spec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return spectra, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStrs := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, created INTEGER, config TEXT) STRICT`, tableRun),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, sweep INTEGER, elapsed INTEGER, distance REAL, PRIMARY KEY (run, sweep)) STRICT`, tableSweep),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, sweep INTEGER, x INTEGER, y INTEGER, corner INTEGER, i INTEGER, v REAL, PRIMARY KEY (run, sweep, x, y, corner, i)) STRICT`, tableSpectrum),
	}
	for _, sqlStr := range sqlStrs {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}
