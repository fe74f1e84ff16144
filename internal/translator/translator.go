// Package translator turns a natural-language question plus a schema
// snapshot into a single validated SQL statement via the completion
// service. Translation is one attempt per request; retry policy belongs to
// the caller.
package translator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/genai"
	"github.com/queryscope/queryscope/internal/qerr"
)

// Result is the outcome of one translation.
type Result struct {
	SQL       string
	Rationale string // prose the service wrapped around the statement, if any
}

type Translator struct {
	llm     genai.CompletionClient
	timeout time.Duration
}

// New builds a Translator. timeout bounds each completion call; zero means
// the caller's context is the only bound.
func New(llm genai.CompletionClient, timeout time.Duration) *Translator {
	return &Translator{llm: llm, timeout: timeout}
}

// Translate builds a schema-grounded prompt, invokes the completion service
// once, extracts the SQL from the free-text response and validates it.
// Nothing is executed here.
func (t *Translator) Translate(ctx context.Context, question string, schema *database.SchemaSnapshot, dialect string) (*Result, error) {
	prompt := BuildPrompt(question, schema, dialect)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	text, err := t.llm.Complete(ctx, prompt)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, qerr.Wrap(qerr.KindTimeout, "completion call exceeded its deadline", err)
		case errors.Is(err, context.Canceled):
			return nil, qerr.Wrap(qerr.KindTimeout, "completion call was cancelled", err)
		}
		return nil, qerr.Wrap(qerr.KindTranslation, "completion service is unavailable", err)
	}

	sqlText, rationale, ok := ExtractSQL(text)
	if !ok {
		return nil, qerr.New(qerr.KindTranslation, "completion response contained no SQL statement")
	}

	validated, err := Validate(sqlText)
	if err != nil {
		return nil, err
	}

	return &Result{SQL: validated, Rationale: rationale}, nil
}

var dialectNames = map[string]string{
	"mysql":             "MySQL",
	"cloudsqlmysql":     "MySQL",
	"postgres":          "PostgreSQL",
	"cloudsqlpostgres":  "PostgreSQL",
	"sqlserver":         "SQL Server",
	"cloudsqlsqlserver": "SQL Server",
}

// BuildPrompt embeds the schema (table and column names with coarse types)
// and the question into one instruction block for the completion service.
// Identifiers are shown in the dialect's quoted form so generated SQL
// survives reserved words and mixed-case names.
func BuildPrompt(question string, schema *database.SchemaSnapshot, dialect string) string {
	engine := dialectNames[dialect]
	if engine == "" {
		engine = "ANSI SQL"
	}

	quote := func(name string) string { return name }
	if handler, err := database.GetDialectHandler(dialect); err == nil {
		quote = handler.QuoteIdentifier
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s query generator. Convert the natural language question into a single %s SELECT statement.\n\n", engine, engine)
	b.WriteString("Database schema:\n")
	for _, table := range schema.Tables {
		columnNames := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			columnNames[i] = fmt.Sprintf("%s (%s)", quote(col.Name), col.Kind)
		}
		fmt.Fprintf(&b, "- %s: [%s]\n", quote(table.Name), strings.Join(columnNames, ", "))
	}
	if schema.Truncated {
		fmt.Fprintf(&b, "(schema truncated: %d of %d tables shown)\n", len(schema.Tables), schema.TotalTables)
	}

	b.WriteString("\nRequirements:\n")
	b.WriteString("1. Generate exactly ONE statement, starting with SELECT or WITH.\n")
	b.WriteString("2. Never modify data: no INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE or GRANT.\n")
	b.WriteString("3. Do not include SQL comments.\n")
	b.WriteString("4. Use GROUP BY for aggregated questions and ORDER BY when ordering is implied.\n")
	b.WriteString("5. Return ONLY the SQL query, no explanations or markdown.\n")

	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	return b.String()
}

var fencedBlock = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
var statementStart = regexp.MustCompile(`(?im)^\s*(SELECT|WITH)\b`)

// ExtractSQL pulls the first SQL statement out of a free-text completion.
// The service is not guaranteed to return pure SQL, so fenced blocks and
// surrounding prose are tolerated. The prose outside the statement is
// returned as rationale.
func ExtractSQL(text string) (sqlText, rationale string, ok bool) {
	if m := fencedBlock.FindStringSubmatchIndex(text); m != nil {
		inner := strings.TrimSpace(text[m[2]:m[3]])
		outer := strings.TrimSpace(text[:m[0]] + " " + text[m[1]:])
		// A fence around prose is not a statement; fall through to the
		// plain-text scan instead of returning it as SQL.
		if statementStart.MatchString(inner) {
			return inner, outer, true
		}
	}

	if loc := statementStart.FindStringIndex(text); loc != nil {
		stmt := strings.TrimSpace(text[loc[0]:])
		// A blank line after the statement usually separates trailing prose.
		if idx := strings.Index(stmt, "\n\n"); idx > 0 {
			rationale = strings.TrimSpace(text[:loc[0]] + " " + stmt[idx:])
			stmt = strings.TrimSpace(stmt[:idx])
		} else {
			rationale = strings.TrimSpace(text[:loc[0]])
		}
		return stmt, rationale, true
	}

	return "", "", false
}
