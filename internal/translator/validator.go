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
package translator

import (
	"strings"

	"github.com/queryscope/queryscope/internal/qerr"
)

// allowedLeadingKeywords is the full allow-list: the generated SQL runs
// with the connection's privileges, so everything that is not a read
// statement is rejected rather than enumerated.
var allowedLeadingKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// commentSequences introduce SQL comments. A generated statement carrying
// one is treated as an injection attempt, not cleaned up.
var commentSequences = []string{"--", "/*", "#"}

// Validate enforces the read-only, single-statement contract on generated
// SQL. It returns the statement with the trailing terminator stripped, or a
// tagged unsafe_query error. Rejection here is a deliberate blocking
// condition: the statement must never reach the executor.
func Validate(sqlText string) (string, error) {
	stmt := strings.TrimSpace(sqlText)
	if stmt == "" {
		return "", qerr.New(qerr.KindUnsafeQuery, "generated SQL is empty")
	}

	// One trailing terminator is cosmetic; anything after it is stacking.
	stmt = strings.TrimRight(stmt, "; \t\r\n")
	if strings.Contains(stmt, ";") {
		return "", qerr.New(qerr.KindUnsafeQuery, "generated SQL contains multiple statements")
	}

	for _, seq := range commentSequences {
		if strings.Contains(stmt, seq) {
			return "", qerr.New(qerr.KindUnsafeQuery, "generated SQL contains a comment sequence")
		}
	}

	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return "", qerr.New(qerr.KindUnsafeQuery, "generated SQL is empty")
	}
	if !allowedLeadingKeywords[strings.ToUpper(fields[0])] {
		return "", qerr.New(qerr.KindUnsafeQuery, "only SELECT and WITH statements are allowed")
	}

	return stmt, nil
}
