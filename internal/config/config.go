/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the binary reads at startup. Connection
// details for target databases arrive per request, not here.
type Config struct {
	// HTTP server.
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Completion service.
	GeminiAPIKey      string
	GeminiModel       string
	CompletionTimeout time.Duration

	// Query execution limits.
	QueryTimeout    time.Duration
	MaxRows         int
	MaxSchemaTables int

	// Analysis.
	MaxChartRows int
}

const envPrefix = "QUERYSCOPE"

// Load reads configuration from QUERYSCOPE_* environment variables with
// defaults for everything except the API key. GEMINI_API_KEY is honored as
// a fallback for compatibility with other Gemini tooling.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		ListenAddr:        v.GetString("listen_addr"),
		ReadTimeout:       v.GetDuration("read_timeout"),
		WriteTimeout:      v.GetDuration("write_timeout"),
		ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
		GeminiAPIKey:      v.GetString("gemini_api_key"),
		GeminiModel:       v.GetString("gemini_model"),
		CompletionTimeout: v.GetDuration("completion_timeout"),
		QueryTimeout:      v.GetDuration("query_timeout"),
		MaxRows:           v.GetInt("max_rows"),
		MaxSchemaTables:   v.GetInt("max_schema_tables"),
		MaxChartRows:      v.GetInt("max_chart_rows"),
	}

	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("read_timeout", 15*time.Second)
	v.SetDefault("write_timeout", 120*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("gemini_model", "gemini-1.5-flash-latest")
	v.SetDefault("completion_timeout", 30*time.Second)
	v.SetDefault("query_timeout", 30*time.Second)
	v.SetDefault("max_rows", 10000)
	v.SetDefault("max_schema_tables", 200)
	v.SetDefault("max_chart_rows", 50)
}
