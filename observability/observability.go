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

package observability

import (
	// standard libraries.
	"context"
	"fmt"
	"net/http"

	// third-party libraries.
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// this project.
	"github.com/linkall-labs/hgsmi/observability/log"
	"github.com/linkall-labs/hgsmi/observability/tracing"
)

const defaultMetricsPort = 2112

func Initialize(cfg Config, metricsFunc func()) error {
	if cfg.M.Enable {
		if metricsFunc != nil {
			metricsFunc()
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.M.GetPort())
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warning(context.Background(), "metrics server stopped", map[string]interface{}{
					log.KeyError: err,
					"addr":       addr,
				})
			}
		}()
	}
	tracing.Init(cfg.T)
	return nil
}

type Config struct {
	M Metrics        `yaml:"metrics"`
	T tracing.Config `yaml:"tracing"`
}

type Metrics struct {
	Enable bool `yaml:"enable"`
	Port   int  `yaml:"port"`
}

func (m Metrics) GetPort() int {
	if m.Port == 0 {
		return defaultMetricsPort
	}
	return m.Port
}
