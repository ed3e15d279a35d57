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
	"github.com/grailbio/base/log"
)

// workerLoop parses queued lines and applies their per-base evidence to the
// window.  The worker's barrier lock is held exactly while one record is in
// flight, so that appendingFinished can prove quiescence by cycling it.
func (t *tabulator) workerLoop(id int) {
	aln := new(alignment)
	for {
		t.workerLocks[id].Lock()
		ln, ok := t.lineQ.TryPop()
		if !ok {
			t.workerLocks[id].Unlock()
			if !t.lineQ.WaitNonEmpty() {
				return
			}
			continue
		}
		aln.parse(ln.buf, t.conv, t.opts.UniqueOnly, t.opts.MultipleOnly)
		t.pools.returnLine(ln)
		t.applyAlignment(aln)
		t.workerLocks[id].Unlock()
	}
}

func (t *tabulator) applyAlignment(a *alignment) {
	if !a.mapped || len(a.bases) == 0 {
		return
	}
	base := t.window.indexOf(a.location)
	for i := range a.bases {
		b := &a.bases[i]
		if b.remove {
			continue
		}
		idx := base + int(b.refPos)
		if idx < 0 || idx >= len(t.window.positions) {
			log.Panicf("alignment at %s:%d reaches outside the loaded window (offset %d, window size %d)",
				t.window.chromosome, a.location, b.refPos, len(t.window.positions))
		}
		pos := t.window.positions[idx]
		if pos.location != a.location+int64(b.refPos) {
			log.Panicf("window misaligned at %s:%d: position %d found where %d was expected",
				t.window.chromosome, a.location, pos.location, a.location+int64(b.refPos))
		}
		if pos.strand == '?' {
			continue
		}
		pos.appendBase(b, a.readNameID)
	}
}

// appendingFinished cycles every worker's barrier lock.  Workers hold that
// lock only while processing a single record, so a full round trip
// guarantees no per-base mutation is in flight; the driver calls this before
// every window mutation.
func (t *tabulator) appendingFinished() {
	for i := range t.workerLocks {
		t.workerLocks[i].Lock()
		t.workerLocks[i].Unlock()
	}
}
