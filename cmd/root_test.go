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
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCobraArgsRejectsPositionalArguments(t *testing.T) {
	viper.Reset()
	rootCmd.SetArgs([]string{"extra-arg"})
	err := rootCmd.Execute()
	assert.Error(t, err)
}

func TestInitConfigDefaultsWithoutConfigFile(t *testing.T) {
	viper.Reset()
	cfgFile = ""
	configFileErr = nil
	loadErr = nil

	initConfig()

	require.NoError(t, configFileErr)
	require.NoError(t, loadErr)
	assert.Equal(t, 32, MachineConfig.VM.FrameCount)
}

func TestInitConfigReadsYAMLFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "kerncore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vm:\n  frame-count: 64\n"), 0o644))

	cfgFile = path
	configFileErr = nil
	loadErr = nil
	defer func() { cfgFile = "" }()

	initConfig()

	require.NoError(t, configFileErr)
	require.NoError(t, loadErr)
	assert.Equal(t, 64, MachineConfig.VM.FrameCount)
}

func TestInitConfigReportsMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfgFile = filepath.Join(t.TempDir(), "does-not-exist.yaml")
	configFileErr = nil
	loadErr = nil
	defer func() { cfgFile = "" }()

	initConfig()

	assert.Error(t, configFileErr)
}
