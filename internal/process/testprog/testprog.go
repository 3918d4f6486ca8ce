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

// Package testprog is a tiny in-repo stand-in for a cross-compiled ELF
// binary (spec.md §4.6 "load"/"exec"), used by unit tests and by cmd's
// runner (its "init" program) to exercise spawn/wait without a real
// executable format or instruction set to run.
// Registering a Program under a name makes internal/process.Spawn treat
// that name as loadable; its Main runs in place of jumping to user mode.
package testprog

import "sync"

// Program is a fake loadable executable: a name a test registers, plus the
// behavior that stands in for running user-mode instructions.
type Program struct {
	Name string
	Main func(argv []string) int
}

var (
	mu       sync.Mutex
	registry = make(map[string]*Program)
)

// Register makes p loadable under p.Name. Safe to call from test setup
// concurrently with other registrations.
func Register(p *Program) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name] = p
}

// Lookup returns the program registered under name, if any.
func Lookup(name string) (*Program, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := registry[name]
	return p, ok
}

// Unregister removes name from the registry, for test cleanup.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(registry, name)
}
