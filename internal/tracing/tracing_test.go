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

package tracing_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/tracing"
)

func TestDisabledTracerIsNoOp(t *testing.T) {
	tr, err := tracing.New(&bytes.Buffer{}, 0)
	require.NoError(t, err)

	ctx, span := tr.StartSyscall(context.Background(), "Read", "init")
	tr.End(span, nil)
	assert.NotNil(t, ctx)
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestEnabledTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := tracing.New(&buf, 1)
	require.NoError(t, err)

	_, span := tr.StartSyscall(context.Background(), "Write", "shell")
	tr.End(span, nil)

	_, faultSpan := tr.StartPageFault(context.Background(), 0x08048000)
	tr.End(faultSpan, errors.New("unresolvable fault"))

	require.NoError(t, tr.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "syscall.Write")
	assert.Contains(t, out, "vm.pagefault")
}
