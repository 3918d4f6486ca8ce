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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-kerncore/kerncore/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	loadErr       error
	MachineConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "kerncore [flags]",
	Short: "Boot a kernel-core machine: scheduler, VM, filesystem and process layers over a disk image",
	Long: `kerncore boots one instance of the kernel-core teaching OS: a
cooperative thread scheduler with priority donation or MLFQS, a demand-paged
virtual memory layer with swap and mmap, a buffer-cached on-disk filesystem,
and a process layer that spawns a registered program through the real
syscall dispatcher. It plays the part boot loader, console and ELF loader
play in the original design — load an image, deliver timer ticks, and post
syscalls into the four core subsystems.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if loadErr != nil {
			return loadErr
		}
		if err := cfg.Rationalize(&MachineConfig); err != nil {
			return fmt.Errorf("rationalizing config: %w", err)
		}
		if err := cfg.ValidateConfig(&MachineConfig); err != nil {
			return err
		}
		return runMachine(cmd.Context(), MachineConfig)
	},
}

// Execute runs the root command, printing any error to stderr and exiting
// nonzero, per the teacher's own Execute.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

// initConfig mirrors the teacher's own initConfig: flags alone when no
// --config-file is given, or a YAML file's settings merged underneath the
// bound flags when one is. Either way cfg.Load (not viper.Unmarshal) does
// the actual decode, since it is the one call site that sets
// mapstructure's TagName to "yaml" — see cfg/load.go's doc comment for why
// the bare viper.Unmarshal the teacher calls here cannot match this
// project's dash-cased, multi-word tags.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	c, err := cfg.Load(viper.GetViper())
	if err != nil {
		loadErr = err
		return
	}
	MachineConfig = c
}
