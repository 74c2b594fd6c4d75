// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command drp-runs inspects the run/configuration database shared by
// a fleet of drp-contrib processes.
package main // import "github.com/robertu94/lcls2/cmd/drp-runs"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/robertu94/lcls2/conddb"
	_ "github.com/go-sql-driver/mysql"
)

const (
	dbname = "drpruns"
)

func main() {
	log.SetPrefix("drp-runs: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "", "configuration name to inspect (default: most recent)")
		det     = flag.String("det", "", "BLD detector name to inspect VarDefs for")
	)

	flag.Parse()

	db, err := conddb.Open(dbname)
	if err != nil {
		log.Fatalf("could not open run db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *cfgName, *det)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *conddb.DB, cfgName, det string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfgName == "" {
		v, err := db.LastConfigName(ctx)
		if err != nil {
			return fmt.Errorf("could not get last config name: %w", err)
		}
		cfgName = v
		log.Printf("config: %q", cfgName)
	}

	run, err := db.LastRunNumber(ctx)
	if err != nil {
		return fmt.Errorf("could not get last run number: %w", err)
	}
	log.Printf("last run: %d", run)

	runs, err := db.RunInfos(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve runs: %w", err)
	}
	log.Printf("runs: %d", len(runs))
	for _, r := range runs {
		log.Printf("run=%d exp=%q start=%s end=%s", r.RunNum, r.ExpName, r.Start, r.End)
	}

	if det != "" {
		defs, err := db.VarDefsFor(ctx, det)
		if err != nil {
			return fmt.Errorf("could not retrieve vardefs for %q: %w", det, err)
		}
		log.Printf("vardefs[%s]: %d", det, len(defs))
		for _, d := range defs {
			log.Printf(">>> %s (%s) off=%d size=%d", d.Name, d.Type, d.Offset, d.Size)
		}
	}

	return nil
}
