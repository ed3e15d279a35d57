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
package table

import (
	"fmt"
	"strings"
)

// Opts bundles the commandline options of the tabulation run.
type Opts struct {
	// AlignmentsPath is the sorted SAM input; "-" reads standard input.
	AlignmentsPath string
	// RefPath is the reference FASTA.
	RefPath string
	// OutputPath receives the TSV table; empty writes to standard output.
	OutputPath string
	// BaseChange is the conversion as "FROM,TO", e.g. "C,T".
	BaseChange string
	// CGOnly restricts counting to reference CG dinucleotides.
	CGOnly bool
	// UniqueOnly counts bases from uniquely mapped reads only (NH == 1).
	UniqueOnly bool
	// MultipleOnly counts bases from multi-mapped reads only (NH > 1).
	MultipleOnly bool
	// Threads is the number of parsing workers.
	Threads int
	// AddedChrName adds a "chr" prefix to reference names missing one.
	AddedChrName bool
	// RemovedChrName strips a "chr" prefix from reference names.
	RemovedChrName bool
	// LoadingBlockSize is the reference-window slide increment in bp.
	LoadingBlockSize int64
}

// DefaultOpts hold the flag defaults for the hisat-3n-table command.
var DefaultOpts = Opts{
	Threads:          1,
	LoadingBlockSize: 1000000,
}

// Conversion describes a 3N base change: reads carry To where the reference
// has From on the forward strand, and the complements on the reverse strand.
type Conversion struct {
	From           byte
	To             byte
	FromComplement byte
	ToComplement   byte
}

var complementTable = map[byte]byte{'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C'}

// ParseBaseChange parses a "FROM,TO" argument into a Conversion.
func ParseBaseChange(arg string) (Conversion, error) {
	var conv Conversion
	parts := strings.Split(arg, ",")
	if len(parts) != 2 || len(parts[0]) != 1 || len(parts[1]) != 1 {
		return conv, fmt.Errorf("expected 2 comma-separated nucleotides for base change (e.g. C,T), got %q", arg)
	}
	conv.From = upperBase(parts[0][0])
	conv.To = upperBase(parts[1][0])
	var ok bool
	if conv.FromComplement, ok = complementTable[conv.From]; !ok {
		return conv, fmt.Errorf("base change nucleotide %q is not one of A/C/G/T", parts[0])
	}
	if conv.ToComplement, ok = complementTable[conv.To]; !ok {
		return conv, fmt.Errorf("base change nucleotide %q is not one of A/C/G/T", parts[1])
	}
	if conv.From == conv.To {
		return conv, fmt.Errorf("base change %q converts a nucleotide to itself", arg)
	}
	return conv, nil
}

func upperBase(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// NormalizeChrName returns the reference-name normalization rule selected by
// the added/removed flags, or nil when names pass through unchanged.
func NormalizeChrName(added, removed bool) func(string) string {
	switch {
	case removed:
		return func(name string) string {
			return strings.TrimPrefix(name, "chr")
		}
	case added:
		return func(name string) string {
			if !strings.HasPrefix(name, "chr") {
				return "chr" + name
			}
			return name
		}
	}
	return nil
}
