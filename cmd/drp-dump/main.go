// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command drp-dump converts between a stream of contributions
// (xtc.EbDgram) and an LCIO file, for offline inspection or replay of
// a recorded run. It merges the teacher's eda2lcio/lcio-dump pair into
// one tool scoped to the contribution format of this repository.
//
// Usage:
//
//	drp-dump -to-lcio -run 63 -o run0063.lcio contrib0063.bin
//	drp-dump -dump run0063.lcio
package main // import "github.com/robertu94/lcls2/cmd/drp-dump"

import (
	"bufio"
	"compress/flate"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go-hep.org/x/hep/lcio"

	"github.com/robertu94/lcls2/internal/xcnv"
	"github.com/robertu94/lcls2/xtc"
)

const usage = `drp-dump converts a raw contribution stream to/from LCIO.

Usage:

 $> drp-dump -to-lcio -run 63 -o run0063.lcio contrib0063.bin
 $> drp-dump -dump run0063.lcio
 $> drp-dump -from-lcio -o contrib0063.bin run0063.lcio

A raw contribution stream is a flat file of length-prefixed
xtc.EbDgram.MarshalBinary blobs (uint32 little-endian length, then the
blob), the on-disk shape cmd/drp-contrib would write if it ever chose
to persist contributions (it does not, per spec's non-goals; this tool
exists for test fixtures and offline replay only).

options:
`

var msg = log.New(os.Stdout, "drp-dump: ", 0)

func main() {
	var (
		oname    = flag.String("o", "", "path to output file")
		run      = flag.Int("run", 0, "run number to stamp on an LCIO run header (-to-lcio)")
		compr    = flag.Int("lvl", flate.DefaultCompression, "LCIO compression level (-to-lcio)")
		toLCIO   = flag.Bool("to-lcio", false, "convert a raw contribution stream to LCIO")
		fromLCIO = flag.Bool("from-lcio", false, "convert an LCIO file back to a raw contribution stream")
		dump     = flag.Bool("dump", false, "print a human-readable dump of an LCIO file's contributions")
	)

	flag.Usage = func() {
		fmt.Print(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("expected exactly one input file")
	}
	fname := flag.Arg(0)

	var err error
	switch {
	case *toLCIO:
		err = toLCIOFile(*oname, fname, int32(*run), *compr)
	case *fromLCIO:
		err = fromLCIOFile(*oname, fname)
	case *dump:
		err = dumpFile(os.Stdout, fname)
	default:
		flag.Usage()
		msg.Fatalf("pick exactly one of -to-lcio, -from-lcio, -dump")
	}
	if err != nil {
		msg.Fatalf("%+v", err)
	}
}

func toLCIOFile(oname, fname string, run int32, lvl int) error {
	if oname == "" {
		return fmt.Errorf("drp-dump: -o is required with -to-lcio")
	}
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("drp-dump: could not open input stream: %w", err)
	}
	defer f.Close()

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("drp-dump: could not create output LCIO file: %w", err)
	}
	defer w.Close()
	w.SetCompressionLevel(lvl)

	dgrams := make(chan *xtc.EbDgram, 64)
	ch := make(chan error, 1)
	go func() {
		defer close(dgrams)
		ch <- readStream(f, dgrams)
	}()

	if err := xcnv.Contrib2LCIO(w, dgrams, run, msg); err != nil {
		return fmt.Errorf("drp-dump: could not convert to LCIO: %w", err)
	}
	if err := <-ch; err != nil {
		return fmt.Errorf("drp-dump: could not read contribution stream: %w", err)
	}
	return w.Close()
}

func fromLCIOFile(oname, fname string) error {
	if oname == "" {
		return fmt.Errorf("drp-dump: -o is required with -from-lcio")
	}
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("drp-dump: could not open input LCIO file: %w", err)
	}
	defer r.Close()

	out, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("drp-dump: could not create output stream: %w", err)
	}
	defer out.Close()

	dgrams := make(chan *xtc.EbDgram, 64)
	go func() {
		_ = xcnv.LCIO2Contrib(r, dgrams, msg)
	}()

	w := bufio.NewWriter(out)
	for d := range dgrams {
		if err := writeStreamEntry(w, d); err != nil {
			return fmt.Errorf("drp-dump: could not write contribution: %w", err)
		}
	}
	return w.Flush()
}

func dumpFile(w io.Writer, fname string) error {
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("drp-dump: could not open input LCIO file: %w", err)
	}
	defer r.Close()

	dgrams := make(chan *xtc.EbDgram, 64)
	ch := make(chan error, 1)
	go func() {
		ch <- xcnv.LCIO2Contrib(r, dgrams, log.New(io.Discard, "", 0))
	}()

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	i := 0
	for d := range dgrams {
		fmt.Fprintf(bw, "=== contribution %d ===\n", i)
		fmt.Fprintf(bw, "service:   %s\n", d.Timing.Service)
		fmt.Fprintf(bw, "pulseId:   %d\n", d.Timing.PulseID)
		fmt.Fprintf(bw, "timestamp: sec=%d nsec=%d\n", d.Timing.Timestamp.Seconds(), d.Timing.Timestamp.Nanoseconds())
		fmt.Fprintf(bw, "srcId:     0x%x\n", d.SrcID)
		fmt.Fprintf(bw, "rogMask:   0x%x\n", d.RogMask)
		fmt.Fprintf(bw, "damage:    %s\n", d.Damage)
		fmt.Fprintf(bw, "xtc bytes: %d\n", len(d.XTC))
		i++
	}
	return <-ch
}

// readStream decodes length-prefixed xtc.EbDgram blobs from r onto out.
func readStream(r io.Reader, out chan<- *xtc.EbDgram) error {
	for {
		var lenBuf [4]byte
		_, err := io.ReadFull(r, lenBuf[:])
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("could not read length prefix: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return fmt.Errorf("could not read %d-byte contribution: %w", n, err)
		}
		var d xtc.EbDgram
		if err := d.UnmarshalBinary(blob); err != nil {
			return fmt.Errorf("could not unmarshal contribution: %w", err)
		}
		out <- &d
	}
}

// writeStreamEntry encodes d as a length-prefixed blob on w.
func writeStreamEntry(w io.Writer, d *xtc.EbDgram) error {
	blob, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(blob)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(blob)
	return err
}
