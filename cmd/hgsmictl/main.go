// Copyright 2022 Linkall Inc.
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

// hgsmictl is a command line application that inspects and exercises the shared-memory
// transport.
package main

import (
	// standard libraries.
	"fmt"
	"os"

	// third-party libraries.
	"github.com/spf13/cobra"

	// this project.
	"github.com/linkall-labs/hgsmi/cmd/hgsmictl/command"
)

const (
	cliName        = "hgsmictl"
	cliDescription = "the command-line tool for the host/guest shared-memory transport"
)

var (
	globalFlags = command.GlobalFlags{}
	rootCmd     = &cobra.Command{
		Use:        cliName,
		Short:      cliDescription,
		SuggestFor: []string{"hgsmi"},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			command.ApplyGlobalFlags(cmd)
		},
	}
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigFile, "config", "",
		"the yaml config of the device used by simulate")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "print debug logs")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Format, "format", "table", "the output format: table or json")

	rootCmd.AddCommand(
		command.NewInspectCommand(),
		command.NewSimulateCommand(),
		newVersionCommand(),
	)
}

func main() {
	MustStart()
}

func Start() error {
	return rootCmd.Execute()
}

func MustStart() {
	if err := Start(); err != nil {
		fmt.Printf("hgsmictl error: %s\n", err)
		os.Exit(-1)
	}
}
