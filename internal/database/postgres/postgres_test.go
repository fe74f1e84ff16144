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
package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/qerr"
)

func TestPostgresListTables(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"table_name"}).
		AddRow("products").
		AddRow("sales")
	mock.ExpectQuery(`SELECT table_name\s+FROM information_schema\.tables`).WillReturnRows(rows)

	db := &database.DB{Pool: mockDB}
	handler := postgresHandler{}

	tables, err := handler.ListTables(context.Background(), db)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(tables) != 2 || tables[0] != "products" {
		t.Errorf("Unexpected tables: %v", tables)
	}
}

func TestPostgresListColumns(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"column_name", "data_type"}).
		AddRow("id", "integer").
		AddRow("price", "numeric").
		AddRow("sold_on", "timestamp without time zone")
	mock.ExpectQuery(`SELECT column_name, data_type\s+FROM information_schema\.columns`).
		WithArgs("sales").
		WillReturnRows(rows)

	db := &database.DB{Pool: mockDB}
	handler := postgresHandler{}

	columns, err := handler.ListColumns(context.Background(), db, "sales")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("Expected 3 columns, got %d", len(columns))
	}
	if columns[1].Kind != database.ColumnNumber {
		t.Errorf("Expected price to be number, got %s", columns[1].Kind)
	}
	if columns[2].Kind != database.ColumnDate {
		t.Errorf("Expected sold_on to be date, got %s", columns[2].Kind)
	}
}

func TestPostgresClassifyError(t *testing.T) {
	handler := postgresHandler{}

	tests := []struct {
		name string
		err  error
		want qerr.Kind
	}{
		{"invalid password", &pq.Error{Code: "28P01"}, qerr.KindConnection},
		{"invalid authorization", &pq.Error{Code: "28000"}, qerr.KindConnection},
		{"unknown database", &pq.Error{Code: "3D000"}, qerr.KindConnection},
		{"insufficient privilege", &pq.Error{Code: "42501"}, qerr.KindPermission},
		{"read-only transaction", &pq.Error{Code: "25006"}, qerr.KindPermission},
		{"statement timeout", &pq.Error{Code: "57014"}, qerr.KindTimeout},
		{"undefined column", &pq.Error{Code: "42703"}, qerr.KindQueryExecution},
		{"unrecognized error", errors.New("something else"), qerr.Kind("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handler.ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestPostgresQuoteIdentifier(t *testing.T) {
	handler := postgresHandler{}
	if got := handler.QuoteIdentifier("sales"); got != `"sales"` {
		t.Errorf("QuoteIdentifier = %s", got)
	}
	if got := handler.QuoteIdentifier(`sa"les`); got != `"sa""les"` {
		t.Errorf("QuoteIdentifier with quote = %s", got)
	}
}

func TestPostgresReadOnlySessionSQL(t *testing.T) {
	handler := postgresHandler{}
	stmts := handler.ReadOnlySessionSQL()
	if len(stmts) != 1 || stmts[0] != "SET default_transaction_read_only = on" {
		t.Errorf("Unexpected read-only session SQL: %v", stmts)
	}
}
