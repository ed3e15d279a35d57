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

import "fmt"

// UnknownChromosomeError reports an alignment naming a chromosome that is
// absent from the reference FASTA.
type UnknownChromosomeError struct {
	Name string
}

func (e *UnknownChromosomeError) Error() string {
	return fmt.Sprintf("chromosome %q not found in the reference", e.Name)
}

// NotSortedError reports a position decrease within one chromosome of the
// alignment input.
type NotSortedError struct {
	Chromosome string
	LastPos    int64
	NewPos     int64
}

func (e *NotSortedError) Error() string {
	return fmt.Sprintf("input alignment file is not sorted: %s:%d follows %s:%d",
		e.Chromosome, e.NewPos, e.Chromosome, e.LastPos)
}
