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
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/pipeline"
)

var (
	askDialect                        string
	askHost                           string
	askPort                           int
	askUsername                       string
	askPassword                       string
	askDBName                         string
	askCloudSQLInstanceConnectionName string
	askCloudSQLUsePrivateIP           bool
)

var askCmd = &cobra.Command{
	Use:     "ask [question]",
	Short:   "Ask a database one question from the command line",
	Long:    `Translates the question to SQL, runs it against the given database, and prints the rows, metrics and insights.`,
	Example: `./queryscope ask "total sales by month" --dialect postgres --host localhost --port 5432 --username user --password pass --database shop`,
	Args:    cobra.ExactArgs(1),
	RunE:    runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := validateDialect(askDialect); err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, cleanup, err := newService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	desc := database.Descriptor{
		Dialect:                        askDialect,
		Host:                           askHost,
		Port:                           askPort,
		User:                           askUsername,
		Password:                       askPassword,
		DBName:                         askDBName,
		CloudSQLInstanceConnectionName: askCloudSQLInstanceConnectionName,
		UsePrivateIP:                   askCloudSQLUsePrivateIP,
	}

	resp, err := svc.Handle(ctx, desc, args[0])
	if err != nil {
		return err
	}

	printResponse(resp)
	return nil
}

func printResponse(resp *pipeline.QueryResponse) {
	fmt.Printf("SQL: %s\n\n", resp.SQLQuery)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := table.Row{}
	for _, col := range resp.Columns {
		header = append(header, col)
	}
	t.AppendHeader(header)

	for _, row := range resp.Data {
		cells := table.Row{}
		for _, col := range resp.Columns {
			cells = append(cells, row[col].Display())
		}
		t.AppendRow(cells)
	}
	t.Render()

	if len(resp.Metrics) > 0 {
		fmt.Println()
		for _, m := range resp.Metrics {
			fmt.Printf("%s: %v\n", m.Title, m.Value)
		}
	}

	if len(resp.Insights) > 0 {
		fmt.Println()
		fmt.Println(strings.Join(resp.Insights, "\n"))
	}
}

func init() {
	askCmd.Flags().StringVar(&askDialect, "dialect", "", fmt.Sprintf("Database dialect (%s) - MANDATORY", strings.Join([]string{"postgres", "mysql", "sqlserver", "cloudsqlpostgres", "cloudsqlmysql", "cloudsqlsqlserver"}, ", ")))
	askCmd.Flags().StringVar(&askHost, "host", "", "Database host - MANDATORY")
	askCmd.Flags().IntVar(&askPort, "port", 0, "Database port - MANDATORY")
	askCmd.Flags().StringVar(&askUsername, "username", "", "Database username - MANDATORY")
	askCmd.Flags().StringVar(&askPassword, "password", "", "Database password - MANDATORY")
	askCmd.Flags().StringVar(&askDBName, "database", "", "Database name - MANDATORY")
	askCmd.Flags().StringVar(&askCloudSQLInstanceConnectionName, "cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects) - MANDATORY for CloudSQL")
	askCmd.Flags().BoolVar(&askCloudSQLUsePrivateIP, "cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")
}
