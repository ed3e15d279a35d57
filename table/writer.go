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

	"github.com/grailbio/base/tsv"
)

// writeTable drains the output queue into w as TSV, one row per informative
// position, and recycles every position it writes.  It returns after the
// queue is closed and empty.  Quality strings are emitted raw; downstream
// tools consume the characters unquoted.
func (t *tabulator) writeTable(w io.Writer) (err error) {
	tw := tsv.NewWriter(w)
	tw.WriteString("ref\tpos\tstrand\tconvertedBaseQualities\tconvertedBaseCount\tunconvertedBaseQualities\tunconvertedBaseCount")
	err = tw.EndLine()
	for {
		pos, ok := t.pools.output.Pop()
		if !ok {
			break
		}
		// Keep draining and recycling after a write error so the window
		// loader's backpressure wait cannot stall.
		if err == nil {
			tw.WriteString(pos.chromosome)
			tw.WriteInt64(pos.location)
			tw.WriteByte(pos.strand)
			tw.WriteString(string(pos.convertedQualities))
			tw.WriteInt64(int64(len(pos.convertedQualities)))
			tw.WriteString(string(pos.unconvertedQualities))
			tw.WriteInt64(int64(len(pos.unconvertedQualities)))
			err = tw.EndLine()
		}
		t.pools.returnPosition(pos)
	}
	if err != nil {
		return err
	}
	return tw.Flush()
}
