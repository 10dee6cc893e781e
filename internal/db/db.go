package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses this so migrations stay the only writer of schema
// changes on that path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// NewDB opens the database and ensures the base audit schema exists.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS actuations (
			id                TEXT PRIMARY KEY,
			degree            BIGINT,
			source            TEXT,
			payload           TEXT,
			requested_at      DOUBLE,
			completed_at      DOUBLE,
			duration_ms       BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS rejections (
			id                TEXT PRIMARY KEY,
			payload           TEXT,
			reason            TEXT,
			source            TEXT,
			rejected_at       DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Actuation is one completed drive cycle: command in, servo out to the
// target and back to rest.
type Actuation struct {
	ID          string  `json:"id"`
	Degree      uint8   `json:"degree"`
	Source      string  `json:"source"`
	Payload     string  `json:"payload"`
	RequestedAt float64 `json:"requested_at"`
	CompletedAt float64 `json:"completed_at"`
	DurationMs  int64   `json:"duration_ms"`
}

func (a *Actuation) String() string {
	return fmt.Sprintf(
		"ID: %s, Degree: %d, Source: %s, Payload: %q, RequestedAt: %f, CompletedAt: %f, DurationMs: %d",
		a.ID, a.Degree, a.Source, a.Payload, a.RequestedAt, a.CompletedAt, a.DurationMs,
	)
}

func (db *DB) RecordActuation(a Actuation) error {
	_, err := db.Exec(
		`INSERT INTO actuations (
			id, degree, source, payload, requested_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Degree, a.Source, a.Payload, a.RequestedAt, a.CompletedAt, a.DurationMs,
	)
	if err != nil {
		return err
	}
	return nil
}

// Actuations returns completed drive cycles, newest first. A positive
// days value restricts the window; limit caps the row count.
func (db *DB) Actuations(days, limit int) ([]Actuation, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := sinceCutoff(days)

	rows, err := db.Query(
		`SELECT id, degree, source, payload, requested_at, completed_at, duration_ms
		FROM actuations
		WHERE requested_at >= ?
		ORDER BY requested_at DESC LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actuations []Actuation
	for rows.Next() {
		var a Actuation
		if err := rows.Scan(
			&a.ID,
			&a.Degree,
			&a.Source,
			&a.Payload,
			&a.RequestedAt,
			&a.CompletedAt,
			&a.DurationMs,
		); err != nil {
			return nil, err
		}
		actuations = append(actuations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return actuations, nil
}

// Rejection is a command the gate refused: unparsable, out of travel,
// or offered while a cycle was running.
type Rejection struct {
	ID         string  `json:"id"`
	Payload    string  `json:"payload"`
	Reason     string  `json:"reason"`
	Source     string  `json:"source"`
	RejectedAt float64 `json:"rejected_at"`
}

func (r *Rejection) String() string {
	return fmt.Sprintf(
		"ID: %s, Payload: %q, Reason: %s, Source: %s, RejectedAt: %f",
		r.ID, r.Payload, r.Reason, r.Source, r.RejectedAt,
	)
}

func (db *DB) RecordRejection(r Rejection) error {
	_, err := db.Exec(
		`INSERT INTO rejections (
			id, payload, reason, source, rejected_at
		) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Payload, r.Reason, r.Source, r.RejectedAt,
	)
	if err != nil {
		return err
	}
	return nil
}

// Rejections returns refused commands, newest first.
func (db *DB) Rejections(limit int) ([]Rejection, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT id, payload, reason, source, rejected_at
		FROM rejections
		ORDER BY rejected_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []Rejection
	for rows.Next() {
		var r Rejection
		if err := rows.Scan(&r.ID, &r.Payload, &r.Reason, &r.Source, &r.RejectedAt); err != nil {
			return nil, err
		}
		rejections = append(rejections, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rejections, nil
}

// HourCount is the number of actuations that started in one hour of
// the day, aggregated over the query window.
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

func (db *DB) ActuationCountsByHour(days int) ([]HourCount, error) {
	rows, err := db.Query(
		`SELECT CAST(strftime('%H', requested_at, 'unixepoch') AS INTEGER) AS hour, COUNT(*)
		FROM actuations
		WHERE requested_at >= ?
		GROUP BY hour
		ORDER BY hour`,
		sinceCutoff(days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, hc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// DegreeCount is the number of actuations that targeted one degree
// position over the query window.
type DegreeCount struct {
	Degree uint8 `json:"degree"`
	Count  int64 `json:"count"`
}

func (db *DB) ActuationCountsByDegree(days int) ([]DegreeCount, error) {
	rows, err := db.Query(
		`SELECT degree, COUNT(*)
		FROM actuations
		WHERE requested_at >= ?
		GROUP BY degree
		ORDER BY degree`,
		sinceCutoff(days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []DegreeCount
	for rows.Next() {
		var dc DegreeCount
		if err := rows.Scan(&dc.Degree, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// sinceCutoff converts a day window into a unix-seconds lower bound.
// Zero or negative days means no lower bound.
func sinceCutoff(days int) float64 {
	if days <= 0 {
		return 0
	}
	return float64(time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix())
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://lock_audit.db", db.DB, &tailsql.DBOptions{
		Label: "Lock audit DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := gzipWriter.Write([]byte{}); err != nil {
			// Need to write something to initialize the gzip header
			http.Error(w, fmt.Sprintf("Failed to initialize gzip writer: %v", err), http.StatusInternalServerError)
			return
		}

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
