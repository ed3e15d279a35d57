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
	"sort"
	"sync"
)

// readEntry records one read's contribution to a Position.  Entries are kept
// sorted by readNameID.  qualIndex is the index of the quality character this
// entry appended to its quality string, so a retraction can remove exactly
// that character.
type readEntry struct {
	readNameID  uint64
	qualIndex   int32
	quality     byte
	isConverted bool
	removed     bool
}

// Position accumulates base-conversion evidence for one reference position.
// Workers touching the same alignment touch contiguous distinct positions, so
// each Position carries its own lock.
type Position struct {
	mu                   sync.Mutex
	chromosome           string
	location             int64 // 1-based
	strand               byte  // '+', '-', or '?' for not-of-interest
	convertedQualities   []byte
	unconvertedQualities []byte
	entries              []readEntry
}

func newPosition() *Position {
	return &Position{location: -1, strand: '?'}
}

func (p *Position) reset() {
	p.chromosome = ""
	p.location = -1
	p.strand = '?'
	p.convertedQualities = p.convertedQualities[:0]
	p.unconvertedQualities = p.unconvertedQualities[:0]
	p.entries = p.entries[:0]
}

func (p *Position) empty() bool {
	return len(p.convertedQualities) == 0 && len(p.unconvertedQualities) == 0
}

// appendBase merges one per-base observation into the position.  A read is
// counted at most once per position: repeat observations in the same
// direction are ignored, and a contradictory observation retracts the read's
// earlier evidence and excludes the read from this position permanently.
func (p *Position) appendBase(b *perBase, readNameID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].readNameID >= readNameID
	})
	if i < len(p.entries) && p.entries[i].readNameID == readNameID {
		e := &p.entries[i]
		if e.removed || e.isConverted == b.converted {
			return
		}
		e.removed = true
		p.retract(e)
		return
	}
	p.entries = append(p.entries, readEntry{})
	copy(p.entries[i+1:], p.entries[i:])
	var qualIndex int32
	if b.converted {
		qualIndex = int32(len(p.convertedQualities))
		p.convertedQualities = append(p.convertedQualities, b.qual)
	} else {
		qualIndex = int32(len(p.unconvertedQualities))
		p.unconvertedQualities = append(p.unconvertedQualities, b.qual)
	}
	p.entries[i] = readEntry{
		readNameID:  readNameID,
		qualIndex:   qualIndex,
		quality:     b.qual,
		isConverted: b.converted,
	}
}

// retract removes the quality character e appended when it was inserted, and
// shifts the recorded indices of later characters in the same string.
func (p *Position) retract(e *readEntry) {
	idx := e.qualIndex
	if e.isConverted {
		p.convertedQualities = append(p.convertedQualities[:idx], p.convertedQualities[idx+1:]...)
	} else {
		p.unconvertedQualities = append(p.unconvertedQualities[:idx], p.unconvertedQualities[idx+1:]...)
	}
	for j := range p.entries {
		o := &p.entries[j]
		if !o.removed && o.isConverted == e.isConverted && o.qualIndex > idx {
			o.qualIndex--
		}
	}
}

// liveEntries counts entries that still contribute a quality character.
func (p *Position) liveEntries() int {
	n := 0
	for i := range p.entries {
		if !p.entries[i].removed {
			n++
		}
	}
	return n
}
