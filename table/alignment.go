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
	"bytes"

	"blainsmith.com/go/seahash"
)

// perBase is one read base's evidence at a reference offset.
type perBase struct {
	refPos    int32 // offset from the alignment start
	qual      byte
	converted bool
	remove    bool // carries no conversion evidence; skip it
}

// alignment is the parsed form of one SAM record, reduced to the fields the
// tabulation needs.  mapped == false marks records to be skipped entirely,
// including parse failures.
type alignment struct {
	mapped     bool
	location   int64 // 1-based leftmost reference position
	sequence   []byte
	bases      []perBase // one entry per read base, parallel to sequence
	readNameID uint64
}

// missingQual substitutes for base qualities when the QUAL field is "*".
const missingQual = 'I'

var (
	nhTag = []byte("NH:i:")
	mdTag = []byte("MD:Z:")
)

// parse fills a from one raw SAM line.  Conversion evidence is derived by
// walking CIGAR together with the MD tag, which recovers the reference base
// under every aligned read base.  Records that cannot be classified (missing
// MD, '*' sequence, malformed fields) come back with mapped == false.
func (a *alignment) parse(buf []byte, conv Conversion, uniqueOnly, multipleOnly bool) {
	a.mapped = false
	a.sequence = a.sequence[:0]
	a.bases = a.bases[:0]

	var fields [11][]byte
	rest := buf
	for i := 0; i < 11; i++ {
		tab := bytes.IndexByte(rest, '\t')
		if tab < 0 {
			if i < 10 {
				return
			}
			fields[i] = rest
			rest = nil
			break
		}
		fields[i] = rest[:tab]
		rest = rest[tab+1:]
	}

	flag, ok := atoi(fields[1])
	if !ok || flag&0x4 != 0 || bytes.Equal(fields[2], []byte("*")) {
		return
	}
	pos, ok := atoi(fields[3])
	if !ok || pos < 1 {
		return
	}
	seq := fields[9]
	if bytes.Equal(seq, []byte("*")) {
		return
	}

	nh := int64(1)
	var md []byte
	for len(rest) > 0 {
		tag := rest
		if tab := bytes.IndexByte(rest, '\t'); tab >= 0 {
			tag = rest[:tab]
			rest = rest[tab+1:]
		} else {
			rest = nil
		}
		switch {
		case bytes.HasPrefix(tag, nhTag):
			if nh, ok = atoi(tag[len(nhTag):]); !ok {
				return
			}
		case bytes.HasPrefix(tag, mdTag):
			md = tag[len(mdTag):]
		}
	}
	if uniqueOnly && nh != 1 {
		return
	}
	if multipleOnly && nh < 2 {
		return
	}
	if md == nil {
		return
	}

	a.location = pos
	a.readNameID = seahash.Sum64(fields[0])
	a.sequence = append(a.sequence, seq...)
	if !a.walkCigar(fields[5], seq, fields[10], md, conv, flag&0x10 != 0) {
		a.bases = a.bases[:0]
		return
	}
	a.mapped = true
}

// walkCigar emits one perBase per read base, classifying aligned bases
// against the reference bases recovered from the MD tag.  reverse marks a
// reverse-strand alignment, which reports the complementary conversion.
func (a *alignment) walkCigar(cigar, seq, qual, md []byte, conv Conversion, reverse bool) bool {
	hasQual := !bytes.Equal(qual, []byte("*"))
	if hasQual && len(qual) != len(seq) {
		return false
	}
	var w mdWalker
	w.md = md
	w.parseRun()

	refOff := int32(0)
	readOff := 0
	i := 0
	for i < len(cigar) {
		n := 0
		start := i
		for i < len(cigar) && cigar[i] >= '0' && cigar[i] <= '9' {
			n = n*10 + int(cigar[i]-'0')
			i++
		}
		if i == start || i == len(cigar) {
			return false
		}
		op := cigar[i]
		i++
		switch op {
		case 'M', '=', 'X':
			for k := 0; k < n; k++ {
				if readOff >= len(seq) {
					return false
				}
				readBase := upperBase(seq[readOff])
				refBase, mismatch, ok := w.next()
				if !ok {
					return false
				}
				if !mismatch {
					refBase = readBase
				}
				q := byte(missingQual)
				if hasQual {
					q = qual[readOff]
				}
				converted, remove := classify(refBase, readBase, conv, reverse)
				a.bases = append(a.bases, perBase{
					refPos:    refOff,
					qual:      q,
					converted: converted,
					remove:    remove,
				})
				readOff++
				refOff++
			}
		case 'I', 'S':
			for k := 0; k < n; k++ {
				if readOff >= len(seq) {
					return false
				}
				a.bases = append(a.bases, perBase{refPos: refOff, remove: true})
				readOff++
			}
		case 'D':
			if !w.skipDeletion(n) {
				return false
			}
			refOff += int32(n)
		case 'N':
			refOff += int32(n)
		case 'H', 'P':
		default:
			return false
		}
	}
	return readOff == len(seq)
}

// classify decides what one aligned base says about the configured
// conversion.  A forward-strand read reports the From->To change where the
// reference carries From; a reverse-strand read reports the complementary
// change where the reference carries the complement.  Everything else is
// skipped.
func classify(refBase, readBase byte, conv Conversion, reverse bool) (converted, remove bool) {
	from, to := conv.From, conv.To
	if reverse {
		from, to = conv.FromComplement, conv.ToComplement
	}
	if refBase == from {
		if readBase == to {
			return true, false
		}
		if readBase == from {
			return false, false
		}
	}
	return false, true
}

// mdWalker steps through an MD:Z value one aligned reference base at a time.
type mdWalker struct {
	md  []byte
	i   int
	run int // remaining match-run length
}

func (w *mdWalker) parseRun() {
	for w.i < len(w.md) && w.md[w.i] >= '0' && w.md[w.i] <= '9' {
		w.run = w.run*10 + int(w.md[w.i]-'0')
		w.i++
	}
}

// next consumes one aligned column.  mismatch reports whether the MD tag
// recorded a reference base differing from the read.
func (w *mdWalker) next() (refBase byte, mismatch, ok bool) {
	if w.run > 0 {
		w.run--
		return 0, false, true
	}
	if w.i >= len(w.md) {
		return 0, false, false
	}
	c := w.md[w.i]
	if !isRefChar(c) {
		return 0, false, false
	}
	w.i++
	w.parseRun()
	return upperBase(c), true, true
}

// skipDeletion consumes a ^-prefixed deletion run of n reference bases.
func (w *mdWalker) skipDeletion(n int) bool {
	if w.run != 0 || w.i >= len(w.md) || w.md[w.i] != '^' {
		return false
	}
	w.i++
	for k := 0; k < n; k++ {
		if w.i >= len(w.md) || !isRefChar(w.md[w.i]) {
			return false
		}
		w.i++
	}
	w.parseRun()
	return true
}

func isRefChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func atoi(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
