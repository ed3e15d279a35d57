// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table implements the hisat-3n-table streaming core: it tabulates
// per-reference-position base-conversion evidence from a coordinate-sorted
// SAM stream.
//
// One driver goroutine reads the alignment stream, slides a window of
// reference positions along the active chromosome, and feeds raw lines to a
// set of parsing workers through a bounded queue.  Workers fold per-base
// evidence into the window's positions, deduplicating by read name.  A single
// writer goroutine drains completed positions into the TSV table.  The input
// is consumed as a buffered stream rather than a memory map so that standard
// input works like any other source.
package table

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/hsuanchi1506/hisat-3n/encoding/fasta"
)

// maxSAMLineBytes bounds a single SAM line.
const maxSAMLineBytes = 1 << 28

type tabulator struct {
	opts        Opts
	conv        Conversion
	pools       *pools
	window      *refWindow
	lineQ       *syncQueue[*line]
	workerLocks []sync.Mutex
}

func newTabulator(opts Opts, conv Conversion, index *fasta.Index, rd *fasta.Reader) *tabulator {
	p := newPools()
	return &tabulator{
		opts:        opts,
		conv:        conv,
		pools:       p,
		window:      newRefWindow(index, rd, p, conv, opts.CGOnly, opts.LoadingBlockSize),
		lineQ:       newSyncQueue[*line](lineQueuePerWorker * opts.Threads),
		workerLocks: make([]sync.Mutex, opts.Threads),
	}
}

// Run executes a whole tabulation: index the reference, then stream the
// sorted alignments through the worker set into the TSV table.
func Run(ctx context.Context, opts Opts) (err error) {
	conv, err := ParseBaseChange(opts.BaseChange)
	if err != nil {
		return err
	}
	if opts.UniqueOnly && opts.MultipleOnly {
		return fmt.Errorf("unique-only and multiple-only are mutually exclusive")
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.LoadingBlockSize <= 0 {
		opts.LoadingBlockSize = DefaultOpts.LoadingBlockSize
	}
	normalize := NormalizeChrName(opts.AddedChrName, opts.RemovedChrName)

	indexFile, err := os.Open(opts.RefPath)
	if err != nil {
		return errors.E(err, "couldn't open reference file:", opts.RefPath)
	}
	index, err := fasta.ScanIndex(indexFile, normalize)
	if e := indexFile.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.E(err, opts.RefPath)
	}
	log.Debug.Printf("indexed %d contigs from %s", len(index.Contigs()), opts.RefPath)

	winFile, err := os.Open(opts.RefPath)
	if err != nil {
		return errors.E(err, "couldn't open reference file:", opts.RefPath)
	}
	defer func() {
		if e := winFile.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var alnIn io.Reader = os.Stdin
	if opts.AlignmentsPath != "-" {
		alnFile, e := os.Open(opts.AlignmentsPath)
		if e != nil {
			return errors.E(e, "couldn't open alignment file:", opts.AlignmentsPath)
		}
		defer func() {
			if e := alnFile.Close(); e != nil && err == nil {
				err = e
			}
		}()
		reader, _ := compress.NewReader(alnFile)
		defer func() {
			if e := reader.Close(); e != nil && err == nil {
				err = e
			}
		}()
		alnIn = reader
	}

	var out io.Writer = os.Stdout
	if opts.OutputPath != "" {
		var outFile file.File
		if outFile, err = file.Create(ctx, opts.OutputPath); err != nil {
			return errors.E(err, "couldn't create output file:", opts.OutputPath)
		}
		defer file.CloseAndReport(ctx, outFile, &err)
		out = outFile.Writer(ctx)
	}

	t := newTabulator(opts, conv, index, fasta.NewReader(winFile))
	var errs errorreporter.T

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		errs.Set(t.writeTable(out))
	}()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		errs.Set(traverse.Each(opts.Threads, func(i int) error {
			t.workerLoop(i)
			return nil
		}))
	}()

	driveErr := t.drive(alnIn)

	// Shutdown: stop the workers once the line queue drains, then the writer
	// once the output queue drains.
	t.lineQ.Close()
	<-workersDone
	t.pools.output.Close()
	<-writerDone

	if driveErr != nil {
		return driveErr
	}
	return errs.Err()
}

// drive is the producer loop: it feeds raw alignment lines to the workers,
// sliding the window at chromosome transitions and block boundaries.  All
// window mutation happens here, between appendingFinished barriers.
func (t *tabulator) drive(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxSAMLineBytes)
	var reloadPos, lastPos int64
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 || raw[0] == '@' {
			continue
		}
		ln := t.pools.getFreeLine()
		ln.buf = append(ln.buf[:0], raw...)
		chrom, samPos, ok := samChromosomePos(ln.buf)
		if !ok {
			t.pools.returnLine(ln)
			continue
		}
		if string(chrom) != t.window.chromosome {
			t.quiesce()
			t.window.moveAllToOutput()
			if err := t.window.loadNewChromosome(string(chrom)); err != nil {
				t.pools.returnLine(ln)
				return err
			}
			log.Debug.Printf("tabulating %s", t.window.chromosome)
			reloadPos = t.opts.LoadingBlockSize
			lastPos = 0
		}
		for samPos > reloadPos {
			t.quiesce()
			t.window.moveBlockToOutput()
			if err := t.window.loadMore(); err != nil {
				t.pools.returnLine(ln)
				return err
			}
			reloadPos += t.opts.LoadingBlockSize
		}
		if lastPos > samPos {
			t.pools.returnLine(ln)
			return &NotSortedError{Chromosome: t.window.chromosome, LastPos: lastPos, NewPos: samPos}
		}
		t.lineQ.Push(ln)
		lastPos = samPos
	}
	if err := sc.Err(); err != nil {
		return errors.E(err, "couldn't read alignment input")
	}
	t.lineQ.WaitEmpty()
	t.appendingFinished()
	t.window.moveAllToOutput()
	t.pools.output.WaitEmpty()
	return nil
}

// quiesce waits for the workers to drain the line queue and for the writer
// to catch up, then cycles the barrier so the window can be mutated.
func (t *tabulator) quiesce() {
	t.lineQ.WaitEmpty()
	t.pools.output.WaitLenBelow(outputSlideMax)
	t.appendingFinished()
}

// samChromosomePos extracts the reference name and 1-based position from the
// four leading tab-separated SAM fields.  ok is false for malformed lines
// and for unmapped records (reference name "*").
func samChromosomePos(buf []byte) (chrom []byte, pos int64, ok bool) {
	rest := buf
	for field := 0; field < 4; field++ {
		tab := bytes.IndexByte(rest, '\t')
		if tab < 0 {
			return nil, 0, false
		}
		switch field {
		case 2:
			chrom = rest[:tab]
		case 3:
			if pos, ok = atoi(rest[:tab]); !ok {
				return nil, 0, false
			}
		}
		rest = rest[tab+1:]
	}
	if len(chrom) == 1 && chrom[0] == '*' {
		return nil, 0, false
	}
	return chrom, pos, true
}
