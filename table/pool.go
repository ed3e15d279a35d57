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

const (
	// lineQueuePerWorker caps the line queue at this many entries per worker.
	lineQueuePerWorker = 1000
	// outputAllocCap blocks position allocation while the output queue holds
	// at least this many entries, bounding memory when workers outrun the
	// writer.
	outputAllocCap = 10000
	// outputSlideMax is the output-queue length the driver waits below before
	// sliding or closing the window.
	outputSlideMax = 100000
)

// line is a recyclable raw-SAM-line buffer.
type line struct {
	buf []byte
}

// pools owns the recyclable Position and line objects and the output queue.
// Every live object belongs to exactly one of: a free pool, the line queue,
// the active window, the output queue, or the writer.
type pools struct {
	freeLines     *syncQueue[*line]
	freePositions *syncQueue[*Position]
	output        *syncQueue[*Position]
}

func newPools() *pools {
	return &pools{
		freeLines:     newSyncQueue[*line](0),
		freePositions: newSyncQueue[*Position](0),
		output:        newSyncQueue[*Position](0),
	}
}

func (p *pools) getFreeLine() *line {
	if ln, ok := p.freeLines.TryPop(); ok {
		return ln
	}
	return &line{}
}

func (p *pools) returnLine(ln *line) {
	ln.buf = ln.buf[:0]
	p.freeLines.Push(ln)
}

// getFreePosition recycles or allocates a Position.  It blocks while the
// output queue is backed up.
func (p *pools) getFreePosition() *Position {
	p.output.WaitLenBelow(outputAllocCap)
	if pos, ok := p.freePositions.TryPop(); ok {
		return pos
	}
	return newPosition()
}

func (p *pools) returnPosition(pos *Position) {
	pos.reset()
	p.freePositions.Push(pos)
}
