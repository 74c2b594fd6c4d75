// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command drp-contrib is a DRP side-channel contributor process: it
// drains one of a BLD multicast group, a process variable, or a UDP
// encoder, matches it against the accepted-trigger stream, and ships
// finished contributions to an event builder, all under the
// transition control plane of spec §6.
package main // import "github.com/robertu94/lcls2/cmd/drp-contrib"

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tdaqconfig "github.com/go-daq/tdaq/config"
	"github.com/go-daq/tdaq/flags"
	"github.com/sbinet/pmon"
	"gopkg.in/gomail.v2"

	"github.com/robertu94/lcls2/conddb"
	"github.com/robertu94/lcls2/trans"
)

func main() {
	cmd := flags.New()

	msg := log.New(os.Stdout, "drp-contrib: ", 0)

	opt, err := parseOptions(cmd.Args)
	if err != nil {
		msg.Printf("%+v", err)
		os.Exit(1)
	}

	if err := run(cmd, opt, msg); err != nil {
		alertFatal(opt, msg, err)
		msg.Printf("fatal: %+v", err)
		os.Exit(2)
	}
}

func run(cmd tdaqconfig.Process, opt options, msg *log.Logger) error {
	db, err := conddb.Open("drpruns")
	if err != nil {
		msg.Printf("could not open run db, continuing without it: %+v", err)
		db = nil
	} else {
		defer db.Close()
	}

	teb, err := dialTeb(fmt.Sprintf("%s:%d", opt.collectionHost, tebPort(opt.partition)), msg)
	if err != nil {
		return err
	}

	dev := newContributor(opt, db, teb, msg)

	var note *trans.Notifier
	if opt.collectionHost != "" {
		n, err := trans.NewNotifier(opt.collectionHost, opt.partition)
		if err != nil {
			msg.Printf("could not open async notification channel: %+v", err)
		} else {
			note = n
			defer note.Close()
		}
	}

	srv := trans.NewServer(cmd, dev, note)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)
	go func() {
		<-stop
		cancel()
	}()

	if opt.pmon {
		go monitorSelf(ctx, opt, msg)
	}

	return srv.Run(ctx)
}

// monitorSelf samples this process's own CPU/RSS usage into
// prometheusDir, in the same textfile-collector shape daq-boot writes
// for the processes it supervises.
func monitorSelf(ctx context.Context, opt options, msg *log.Logger) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		msg.Printf("pmon: could not start self-monitoring: %+v", err)
		return
	}
	p.Freq = time.Second

	dir := opt.prometheusDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.Create(filepath.Join(dir, opt.alias+"-pmon.log"))
	if err != nil {
		msg.Printf("pmon: could not create textfile output: %+v", err)
		return
	}
	defer f.Close()
	p.W = f

	go func() {
		<-ctx.Done()
		if err := p.Kill(); err != nil {
			msg.Printf("pmon: could not stop self-monitoring: %+v", err)
		}
	}()

	if err := p.Run(); err != nil {
		msg.Printf("pmon: self-monitoring exited: %+v", err)
	}
}

// tebPort derives the trigger event builder port for a partition;
// the collection manager assigns the base (spec §6 uses the same
// partition-offset convention for the async notification port).
func tebPort(partition int) int {
	return 29970 + partition
}

// alertFatal emails -alert-to when the process is about to exit on an
// uncaught fault (spec §7), mirroring the teacher's gomail alerting.
func alertFatal(opt options, msg *log.Logger, cause error) {
	if opt.alertTo == "" || opt.smtpHost == "" {
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", "drp-contrib@localhost")
	m.SetHeader("To", opt.alertTo)
	m.SetHeader("Subject", fmt.Sprintf("drp-contrib %s: fatal error", opt.alias))
	m.SetBody("text/plain", fmt.Sprintf("contributor %s (partition %d) exited on an uncaught fault:\n\n%+v", opt.alias, opt.partition, cause))

	d := gomail.NewDialer(opt.smtpHost, opt.smtpPort, opt.smtpUser, opt.smtpPass)
	if err := d.DialAndSend(m); err != nil {
		msg.Printf("could not send fatal-error alert email: %+v", err)
	}
}
