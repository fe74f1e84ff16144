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
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/queryscope/queryscope/internal/analyzer"
	"github.com/queryscope/queryscope/internal/config"
	"github.com/queryscope/queryscope/internal/database"
	_ "github.com/queryscope/queryscope/internal/database/mysql"
	_ "github.com/queryscope/queryscope/internal/database/postgres"
	_ "github.com/queryscope/queryscope/internal/database/sqlserver"
	"github.com/queryscope/queryscope/internal/genai"
	"github.com/queryscope/queryscope/internal/pipeline"
	"github.com/queryscope/queryscope/internal/translator"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	geminiAPIKey string
)

var rootCmd = &cobra.Command{
	Use:   "queryscope",
	Short: "Ask databases questions in plain language",
	Long: `queryscope translates natural-language questions into read-only SQL,
executes them against MySQL, PostgreSQL or SQL Server, and derives charts,
metrics and insights from the results.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfigAndLogger,
}

func initConfigAndLogger(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if geminiAPIKey != "" {
		cfg.GeminiAPIKey = geminiAPIKey
	}

	logger, err = zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func validateDialect(dialect string) error {
	supportedDialects := []string{"postgres", "cloudsqlpostgres", "mysql", "cloudsqlmysql", "sqlserver", "cloudsqlsqlserver"}
	for _, supported := range supportedDialects {
		if dialect == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
}

// newService wires the pipeline: Gemini client, translator, per-request
// executor factory. The returned cleanup closes the Gemini client.
func newService(ctx context.Context) (*pipeline.Service, func(), error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil, fmt.Errorf("gemini API key is required (set --gemini-api-key or GEMINI_API_KEY)")
	}

	client, err := genai.NewClient(ctx, genai.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	openExecutor := func(ctx context.Context, desc database.Descriptor, limits database.Limits) (pipeline.Executor, error) {
		return database.New(ctx, desc, limits)
	}

	limits := database.Limits{
		QueryTimeout:    cfg.QueryTimeout,
		MaxRows:         cfg.MaxRows,
		MaxSchemaTables: cfg.MaxSchemaTables,
	}
	opts := analyzer.DefaultOptions()
	opts.MaxChartRows = cfg.MaxChartRows

	svc := pipeline.New(translator.New(client, cfg.CompletionTimeout), openExecutor, opts, limits, logger)
	cleanup := func() { _ = client.Close() }
	return svc, cleanup, nil
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}
