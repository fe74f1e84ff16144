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
package pipeline

import (
	"context"

	"github.com/queryscope/queryscope/internal/analyzer"
	"github.com/queryscope/queryscope/internal/database"
)

// Executor is the slice of database.DB the pipeline needs. Narrow on
// purpose so tests can substitute an in-memory implementation.
type Executor interface {
	FetchSchema(ctx context.Context) (*database.SchemaSnapshot, error)
	ExecuteQuery(ctx context.Context, sqlText string) (*database.ResultSet, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ Executor = (*database.DB)(nil)

// ExecutorFactory opens an Executor for one request's connection
// descriptor. Pools are per-request because every request may target a
// different database.
type ExecutorFactory func(ctx context.Context, cfg database.Descriptor, limits database.Limits) (Executor, error)

// ResponseMetadata mirrors the result rows for clients that render their
// own tables.
type ResponseMetadata struct {
	RawData    []database.Row `json:"raw_data"`
	DataPoints int            `json:"data_points"`
}

// QueryResponse is the full answer to one natural-language question.
type QueryResponse struct {
	Data             []database.Row               `json:"data"`
	Columns          []string                     `json:"columns"`
	ChartSuggestions []analyzer.ChartSuggestion   `json:"chart_suggestions"`
	SQLQuery         string                       `json:"sql_query"`
	Metrics          []analyzer.Metric            `json:"metrics,omitempty"`
	Visualizations   []analyzer.VisualizationSpec `json:"visualizations"`
	Insights         []string                     `json:"insights"`
	Metadata         ResponseMetadata             `json:"metadata"`
}
