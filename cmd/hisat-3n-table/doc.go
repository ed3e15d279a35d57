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

/*
hisat-3n-table tabulates base-conversion evidence from a coordinate-sorted
SAM stream produced by a 3N aligner.  For every reference position carrying
the convert-from nucleotide (or its complement), it reports the base-call
qualities of reads that observed the converted base and of reads that
observed the original base, one TSV row per position:

	ref	pos	strand	convertedBaseQualities	convertedBaseCount	unconvertedBaseQualities	unconvertedBaseCount

Example:

	hisat-3n-table -alignments sorted.sam -ref genome.fa -base-change C,T \
	    -output-name table.tsv -threads 4

A read contributes at most one observation per position; a read reporting
contradictory converted/unconverted states at the same position is discarded
for that position.
*/
package main
