// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the run and configuration
// database for a DRP contributor: run bookkeeping (RunInfo/ChunkInfo),
// the configuration key/value snapshot attached to each run, and the
// VarDef schema lookup used by BLD-mode detectors whose layout is
// resolved from the database rather than hard-coded.
package conddb // import "github.com/robertu94/lcls2/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve and record run and
// configuration data for a DRP contributor.
type DB struct {
	db   *sql.DB
	name string // name of the run database
}

// Open opens a connection to the run database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastConfigName returns the name of the most recently recorded
// configuration key/value snapshot.
func (db *DB) LastConfigName(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM configs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last config name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get config name value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for config name: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving config name: %w", err)
	}

	return name, nil
}

// LastRunNumber returns the highest run number recorded in the runs table.
func (db *DB) LastRunNumber(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run uint32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run_num FROM runs ORDER BY run_num DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("conddb: could not query last run number: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("conddb: could not get run number value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("conddb: could not scan db for run number: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("conddb: context error while retrieving run number: %w", err)
	}

	return run, nil
}

// VarDefsFor returns the field layout for a BLD detector whose VarDef
// is resolved from the database (the PV-introspected path of spec §4.D)
// rather than one of the four hard-coded names.
func (db *DB) VarDefsFor(ctx context.Context, detName string) ([]VarDef, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		defs = make([]VarDef, 0, 8)
		err  error
	)

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT field_name, field_type, field_offset, field_size
FROM vardefs
WHERE detector=?
ORDER BY field_offset ASC
`,
		detName,
	)
	if err != nil {
		return defs, fmt.Errorf("conddb: could not run vardef query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d VarDef
		err = rows.Scan(&d.Name, &d.Type, &d.Offset, &d.Size)
		if err != nil {
			return defs, fmt.Errorf("conddb: could not scan vardef row: %w", err)
		}
		defs = append(defs, d)
	}

	if err := rows.Err(); err != nil {
		return defs, fmt.Errorf("conddb: could not scan db for vardefs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return defs, fmt.Errorf("conddb: context error while retrieving vardefs: %w", err)
	}

	return defs, nil
}

// RunInfos returns all recorded run bookkeeping entries, most recent last.
func (db *DB) RunInfos(ctx context.Context) ([]RunInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var runs []RunInfo
	rows, err := db.db.QueryContext(ctx, "SELECT run_num, exp_name, start_time, end_time FROM runs ORDER BY run_num ASC")
	if err != nil {
		return runs, fmt.Errorf("conddb: could not run runs query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r RunInfo
		err = rows.Scan(&r.RunNum, &r.ExpName, &r.Start, &r.End)
		if err != nil {
			return runs, fmt.Errorf("conddb: could not scan runs: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("conddb: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return runs, fmt.Errorf("conddb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}

// BeginRun records the start of a new run, returning its assigned run number.
func (db *DB) BeginRun(ctx context.Context, expName string, start time.Time) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	last, err := db.LastRunNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("conddb: could not determine next run number: %w", err)
	}
	run := last + 1

	_, err = db.db.ExecContext(
		ctx,
		"INSERT INTO runs (run_num, exp_name, start_time) VALUES (?, ?, ?)",
		run, expName, start,
	)
	if err != nil {
		return 0, fmt.Errorf("conddb: could not insert run %d: %w", run, err)
	}

	return run, nil
}

// EndRun records the end time of an in-progress run.
func (db *DB) EndRun(ctx context.Context, run uint32, end time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"UPDATE runs SET end_time=? WHERE run_num=?",
		end, run,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not close out run %d: %w", run, err)
	}
	return nil
}

// RecordChunk attaches a ChunkInfo record to an already-open run.
func (db *DB) RecordChunk(ctx context.Context, c ChunkInfo) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO chunks (run_num, chunk_id, filename) VALUES (?, ?, ?)",
		c.RunNum, c.ChunkID, c.Filename,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not record chunk %d for run %d: %w", c.ChunkID, c.RunNum, err)
	}
	return nil
}

// RecordConfig snapshots the closed-set configuration key/value map
// (spec §3 Configuration) that was in effect for a run under name.
func (db *DB) RecordConfig(ctx context.Context, name string, kv map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conddb: could not start config tx: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO configs (name, datetime) VALUES (?, NOW())", name)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("conddb: could not record config %q: %w", name, err)
	}

	for k, v := range kv {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO config_kv (name, ckey, cvalue) VALUES (?, ?, ?)",
			name, k, v,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("conddb: could not record config kv %q=%q for %q: %w", k, v, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conddb: could not commit config %q: %w", name, err)
	}
	return nil
}
