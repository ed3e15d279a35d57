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
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/hsuanchi1506/hisat-3n/table"
)

var (
	alignments     = flag.String("alignments", "", "Sorted SAM file; '-' reads standard input (required)")
	ref            = flag.String("ref", "", "Reference FASTA file (required)")
	outputName     = flag.String("output-name", "", "File name to save the 3n table; empty writes to standard output")
	baseChange     = flag.String("base-change", "", "The nucleotide converted from and the nucleotide converted to, e.g. C,T (required)")
	cgOnly         = flag.Bool("cg-only", false, "Only tabulate reference CG dinucleotide positions")
	uniqueOnly     = flag.Bool("unique-only", false, "Only count the bases of uniquely mapped reads")
	multipleOnly   = flag.Bool("multiple-only", false, "Only count the bases of multi-mapped reads")
	threads        = flag.Int("threads", table.DefaultOpts.Threads, "Number of worker threads to launch")
	addedChrName   = flag.Bool("added-chrname", false, "Add a 'chr' prefix to reference names that lack one")
	removedChrName = flag.Bool("removed-chrname", false, "Strip the 'chr' prefix from reference names")
	blockSize      = flag.Int64("block-size", table.DefaultOpts.LoadingBlockSize, "Reference-window slide increment in bp")
)

func tableUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -alignments <alignmentFile> -ref <refFile> -base-change <char1,char2> [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = tableUsage
	shutdown := grail.Init()
	defer shutdown()

	if *alignments == "" || *ref == "" {
		flag.Usage()
		log.Fatalf("No reference or SAM file specified")
	}
	if *baseChange == "" {
		log.Fatalf("The -base-change argument is required")
	}
	ctx := vcontext.Background()
	opts := table.Opts{
		AlignmentsPath:   *alignments,
		RefPath:          *ref,
		OutputPath:       *outputName,
		BaseChange:       *baseChange,
		CGOnly:           *cgOnly,
		UniqueOnly:       *uniqueOnly,
		MultipleOnly:     *multipleOnly,
		Threads:          *threads,
		AddedChrName:     *addedChrName,
		RemovedChrName:   *removedChrName,
		LoadingBlockSize: *blockSize,
	}
	if err := table.Run(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
