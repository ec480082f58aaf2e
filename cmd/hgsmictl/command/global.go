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

package command

import (
	// standard libraries.
	"strings"

	// third-party libraries.
	"github.com/spf13/cobra"

	// this project.
	"github.com/linkall-labs/hgsmi/observability/log"
)

const (
	FormatJSON = "json"
)

type GlobalFlags struct {
	Debug      bool
	ConfigFile string
	Format     string
}

func ApplyGlobalFlags(cmd *cobra.Command) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		log.SetLogLevel("debug")
	}
}

func IsFormatJSON(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetString("format")
	if err != nil {
		return false
	}
	return strings.ToLower(v) == FormatJSON
}

func configFile(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}
