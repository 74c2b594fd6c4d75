// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"testing"
	"time"

	"github.com/robertu94/lcls2/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()
}

func TestLastConfigName(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"name"},
		Values: [][]driver.Value{
			{"run-2026-08-06"},
		},
	}, func(ctx context.Context) error {
		name, err := db.LastConfigName(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last config name: %+v", err)
		}

		if got, want := name, "run-2026-08-06"; got != want {
			t.Fatalf("invalid last config name: got=%q, want=%q", got, want)
		}
		return nil
	})
}

func TestLastRunNumber(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run_num"},
		Values: [][]driver.Value{
			{uint32(139)},
		},
	}, func(ctx context.Context) error {
		run, err := db.LastRunNumber(context.Background())
		if err != nil {
			t.Fatalf("could not retrieve last run number: %+v", err)
		}

		if got, want := run, uint32(139); got != want {
			t.Fatalf("invalid last run number: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestQueryContext(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	const queryLastRun = "SELECT run_num FROM runs ORDER BY run_num DESC LIMIT 1"

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run_num"},
		Values: [][]driver.Value{
			{uint32(139)},
		},
	}, func(ctx context.Context) error {
		rows, err := db.QueryContext(context.Background(), queryLastRun)
		if err != nil {
			t.Fatalf("could not execute query %q: %+v", queryLastRun, err)
		}
		defer rows.Close()

		var run uint32
		for rows.Next() {
			err = rows.Scan(&run)
			if err != nil {
				t.Fatalf("could not scan run-num: %+v", err)
			}
		}

		if err := rows.Err(); err != nil {
			t.Fatalf("could not scan run-num: %+v", err)
		}

		if got, want := run, uint32(139); got != want {
			t.Fatalf("invalid last run number: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestRunInfos(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	t0 := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	want := []RunInfo{
		{RunNum: 10, ExpName: "xpptut15", Start: t0, End: t0.Add(time.Hour)},
		{RunNum: 11, ExpName: "xpptut15", Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour)},
	}
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run_num", "exp_name", "start_time", "end_time"},
		Values: [][]driver.Value{
			{want[0].RunNum, want[0].ExpName, want[0].Start, want[0].End},
			{want[1].RunNum, want[1].ExpName, want[1].Start, want[1].End},
		},
	}, func(ctx context.Context) error {
		runs, err := db.RunInfos(ctx)
		if err != nil {
			t.Fatalf("could not retrieve run infos: %+v", err)
		}

		if got, want := runs, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid run infos:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestVarDefsFor(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	want := []VarDef{
		{Name: "charge", Type: "float64", Offset: 0, Size: 8},
		{Name: "energy", Type: "float64", Offset: 8, Size: 8},
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"field_name", "field_type", "field_offset", "field_size"},
		Values: [][]driver.Value{
			{want[0].Name, want[0].Type, want[0].Offset, want[0].Size},
			{want[1].Name, want[1].Type, want[1].Offset, want[1].Size},
		},
	}, func(ctx context.Context) error {
		defs, err := db.VarDefsFor(context.Background(), "my-custom-det")
		if err != nil {
			t.Fatalf("could not retrieve vardefs: %+v", err)
		}

		if got, want := defs, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid vardefs:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}
