// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"
	"sync"
)

// PanicWriter appends crash reports to a fixed file, one os.OpenFile per
// Write so a held file handle can't itself be the thing a crash leaves
// corrupted. It backs the recovered-panic report in runMachine, the
// kernel's own analogue of spec.md §7's "Assertion violations" path for a
// raw Go panic that never went through logger.Invariant.
type PanicWriter struct {
	mu       sync.Mutex
	fileName string
}

// NewPanicWriter returns a PanicWriter appending to fileName.
func NewPanicWriter(fileName string) *PanicWriter {
	return &PanicWriter{fileName: fileName}
}

func (w *PanicWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return f.Write(p)
}
