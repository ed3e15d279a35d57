// Package fasta contains code for scanning FASTA reference files.  Briefly,
// FASTA files consist of a number of named sequences that may be interrupted
// by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appearing after a space is ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
//
// Instead of loading whole sequences into memory, this package records the
// byte offset at which each sequence's data starts, so that a caller can seek
// to a sequence and stream its lines.
package fasta

import (
	"bufio"
	"bytes"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// ContigOffset is the byte offset of the first sequence byte of one contig,
// i.e. the first byte after the '>' header line (newline included).
type ContigOffset struct {
	Name   string
	Offset int64
}

// Index maps contig names to byte offsets within the FASTA file it was
// scanned from.  Lookups are O(log n).
type Index struct {
	contigs []ContigOffset
}

// ScanIndex builds an Index in a single pass over r.  normalize, if non-nil,
// is applied to each contig name before it is recorded; pass it to add or
// strip a "chr" prefix.  Lines may have any length.
func ScanIndex(r io.Reader, normalize func(string) string) (*Index, error) {
	var (
		ix      = &Index{}
		rd      = bufio.NewReaderSize(r, 1<<20)
		cumByte int64
		eof     bool
	)
	for !eof {
		fullLine, err := rd.ReadBytes('\n')
		if err == io.EOF {
			eof = true
		} else if err != nil {
			return nil, errors.Wrap(err, "couldn't read FASTA data")
		}
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 || line[0] != '>' {
			continue
		}
		name := contigName(line)
		if normalize != nil {
			name = normalize(name)
		}
		if name == "" {
			return nil, errors.Errorf("malformed FASTA file: empty sequence name at byte %d", cumByte-int64(len(fullLine)))
		}
		ix.contigs = append(ix.contigs, ContigOffset{Name: name, Offset: cumByte})
	}
	if len(ix.contigs) == 0 {
		return nil, errors.New("no FASTA records found")
	}
	sort.Slice(ix.contigs, func(i, j int) bool {
		return ix.contigs[i].Name < ix.contigs[j].Name
	})
	return ix, nil
}

// contigName extracts the sequence name from a '>' header line.
func contigName(line []byte) string {
	end := 1
	for end < len(line) {
		c := line[end]
		if c == ' ' || c == '\t' {
			break
		}
		end++
	}
	return string(line[1:end])
}

// Lookup returns the byte offset of the named contig's sequence data.
func (ix *Index) Lookup(name string) (int64, bool) {
	i := sort.Search(len(ix.contigs), func(i int) bool {
		return ix.contigs[i].Name >= name
	})
	if i == len(ix.contigs) || ix.contigs[i].Name != name {
		return 0, false
	}
	return ix.contigs[i].Offset, true
}

// Contigs returns the indexed contigs, sorted by name.
func (ix *Index) Contigs() []ContigOffset {
	return ix.contigs
}
