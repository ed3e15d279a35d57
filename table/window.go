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
	"io"

	"github.com/hsuanchi1506/hisat-3n/encoding/fasta"
)

// refWindow is the sliding window of positions for the active chromosome.
// It is mutated only by the driver while the workers are quiesced, and read
// by workers otherwise; lines handed to workers through the line queue
// establish the necessary ordering.
type refWindow struct {
	conv      Conversion
	cgOnly    bool
	blockSize int64
	index     *fasta.Index
	rd        *fasta.Reader
	pools     *pools

	chromosome string
	location   int64 // reference bases streamed so far on this chromosome
	lastBase   byte
	refCovered int64 // high-water mark of positions allowed in the window
	positions  []*Position
}

func newRefWindow(index *fasta.Index, rd *fasta.Reader, pools *pools, conv Conversion, cgOnly bool, blockSize int64) *refWindow {
	return &refWindow{
		conv:      conv,
		cgOnly:    cgOnly,
		blockSize: blockSize,
		index:     index,
		rd:        rd,
		pools:     pools,
	}
}

// loadNewChromosome flushes nothing by itself; the driver is expected to
// have emptied the window first.  It seeds the window with about two blocks
// of positions.
func (w *refWindow) loadNewChromosome(name string) error {
	offset, ok := w.index.Lookup(name)
	if !ok {
		return &UnknownChromosomeError{Name: name}
	}
	if err := w.rd.Seek(offset); err != nil {
		return err
	}
	w.chromosome = name
	w.location = 0
	w.lastBase = 'X'
	w.refCovered = 2 * w.blockSize
	return w.fill()
}

// loadMore extends the window by one block.
func (w *refWindow) loadMore() error {
	w.refCovered += w.blockSize
	return w.fill()
}

func (w *refWindow) fill() error {
	for w.location < w.refCovered {
		line, err := w.rd.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			return nil
		}
		upperInPlace(line)
		w.appendRefPosition(line)
	}
	return nil
}

// appendRefPosition turns one uppercased sequence line into window positions
// and classifies their strands.
func (w *refWindow) appendRefPosition(line []byte) {
	for i := 0; i < len(line); i++ {
		b := line[i]
		pos := w.pools.getFreePosition()
		pos.chromosome = w.chromosome
		pos.location = w.location + int64(i) + 1
		if w.cgOnly {
			if w.lastBase == 'C' && b == 'G' && len(w.positions) != 0 {
				w.positions[len(w.positions)-1].strand = '+'
				pos.strand = '-'
			}
		} else if b == w.conv.From {
			pos.strand = '+'
		} else if b == w.conv.FromComplement {
			pos.strand = '-'
		}
		w.positions = append(w.positions, pos)
		w.lastBase = b
	}
	w.location += int64(len(line))
}

// indexOf maps a 1-based reference location to a window index.
func (w *refWindow) indexOf(location int64) int {
	return int(location - w.positions[0].location)
}

// moveBlockToOutput evicts positions that have fallen a full block behind
// the covered region, pushing the informative ones to the writer and
// recycling the rest.
func (w *refWindow) moveBlockToOutput() {
	cut := 0
	for cut < len(w.positions) && w.positions[cut].location < w.refCovered-w.blockSize {
		w.emit(w.positions[cut])
		cut++
	}
	if cut != 0 {
		n := copy(w.positions, w.positions[cut:])
		clearTail(w.positions[n:])
		w.positions = w.positions[:n]
	}
}

// moveAllToOutput flushes the whole window, e.g. at a chromosome change or
// at end of input.
func (w *refWindow) moveAllToOutput() {
	for _, pos := range w.positions {
		w.emit(pos)
	}
	clearTail(w.positions)
	w.positions = w.positions[:0]
}

func (w *refWindow) emit(pos *Position) {
	if pos.empty() || pos.strand == '?' {
		w.pools.returnPosition(pos)
		return
	}
	pos.entries = pos.entries[:0]
	w.pools.output.Push(pos)
}

func clearTail(tail []*Position) {
	for i := range tail {
		tail[i] = nil
	}
}

func upperInPlace(line []byte) {
	for i, c := range line {
		if c >= 'a' && c <= 'z' {
			line[i] = c - 'a' + 'A'
		}
	}
}
