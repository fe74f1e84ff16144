package translator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryscope/queryscope/internal/database"
	_ "github.com/queryscope/queryscope/internal/database/mysql"
	"github.com/queryscope/queryscope/internal/qerr"
)

type stubCompletionClient struct {
	text string
	err  error

	lastPrompt string
}

func (s *stubCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	return s.text, s.err
}

func (s *stubCompletionClient) IsAPIKeyValid(ctx context.Context) error { return nil }
func (s *stubCompletionClient) Close() error                           { return nil }

func sampleSchema() *database.SchemaSnapshot {
	return &database.SchemaSnapshot{
		Tables: []database.TableSchema{
			{
				Name: "sales",
				Columns: []database.ColumnInfo{
					{Name: "month", DataType: "varchar", Kind: database.ColumnString},
					{Name: "total_sales", DataType: "decimal", Kind: database.ColumnNumber},
				},
			},
		},
		TotalTables: 1,
	}
}

func TestTranslate(t *testing.T) {
	stub := &stubCompletionClient{
		text: "```sql\nSELECT month, SUM(amount) AS total_sales FROM sales GROUP BY month;\n```",
	}
	tr := New(stub, 0)

	result, err := tr.Translate(context.Background(), "total sales by month", sampleSchema(), "postgres")
	require.NoError(t, err)
	assert.Equal(t, "SELECT month, SUM(amount) AS total_sales FROM sales GROUP BY month", result.SQL)
	assert.Contains(t, stub.lastPrompt, "sales")
	assert.Contains(t, stub.lastPrompt, "PostgreSQL")
	assert.Contains(t, stub.lastPrompt, "total sales by month")
}

func TestTranslateCompletionFailure(t *testing.T) {
	stub := &stubCompletionClient{err: fmt.Errorf("quota exhausted")}
	tr := New(stub, 0)

	_, err := tr.Translate(context.Background(), "anything", sampleSchema(), "mysql")
	require.Error(t, err)
	assert.Equal(t, qerr.KindTranslation, qerr.KindOf(err))
}

// blockingCompletionClient never answers; it returns only once the
// context is done, standing in for a stalled completion service.
type blockingCompletionClient struct{}

func (b *blockingCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *blockingCompletionClient) IsAPIKeyValid(ctx context.Context) error { return nil }
func (b *blockingCompletionClient) Close() error                           { return nil }

func TestTranslateAppliesCompletionDeadline(t *testing.T) {
	tr := New(&blockingCompletionClient{}, 10*time.Millisecond)

	start := time.Now()
	_, err := tr.Translate(context.Background(), "anything", sampleSchema(), "mysql")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, qerr.KindTimeout, qerr.KindOf(err))
	assert.Less(t, elapsed, time.Second, "translate should return once its own deadline expires")
}

func TestTranslateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(&blockingCompletionClient{}, time.Minute)
	_, err := tr.Translate(ctx, "anything", sampleSchema(), "mysql")
	require.Error(t, err)
	assert.Equal(t, qerr.KindTimeout, qerr.KindOf(err))
}

func TestTranslateNoSQLInResponse(t *testing.T) {
	stub := &stubCompletionClient{text: "I am sorry, I cannot answer that."}
	tr := New(stub, 0)

	_, err := tr.Translate(context.Background(), "anything", sampleSchema(), "mysql")
	require.Error(t, err)
	assert.Equal(t, qerr.KindTranslation, qerr.KindOf(err))
}

func TestTranslateFencedProse(t *testing.T) {
	stub := &stubCompletionClient{text: "```\nI cannot help with that.\n```"}
	tr := New(stub, 0)

	_, err := tr.Translate(context.Background(), "anything", sampleSchema(), "mysql")
	require.Error(t, err)
	assert.Equal(t, qerr.KindTranslation, qerr.KindOf(err))
}

func TestTranslateUnsafeResponse(t *testing.T) {
	stub := &stubCompletionClient{text: "```sql\nSELECT 1; DROP TABLE sales\n```"}
	tr := New(stub, 0)

	_, err := tr.Translate(context.Background(), "anything", sampleSchema(), "mysql")
	require.Error(t, err)
	assert.Equal(t, qerr.KindUnsafeQuery, qerr.KindOf(err))
}

func TestBuildPromptQuotesIdentifiers(t *testing.T) {
	prompt := BuildPrompt("q", sampleSchema(), "mysql")
	assert.Contains(t, prompt, "`sales`")
	assert.Contains(t, prompt, "`total_sales` (number)")
}

func TestBuildPromptReportsTruncation(t *testing.T) {
	schema := sampleSchema()
	schema.TotalTables = 300
	schema.Truncated = true

	prompt := BuildPrompt("q", schema, "sqlserver")
	assert.Contains(t, prompt, "schema truncated: 1 of 300 tables shown")
	assert.Contains(t, prompt, "SQL Server")
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantSQL       string
		wantRationale string
		wantOK        bool
	}{
		{
			name:    "fenced sql block",
			text:    "```sql\nSELECT 1\n```",
			wantSQL: "SELECT 1",
			wantOK:  true,
		},
		{
			name:    "fenced block without language",
			text:    "```\nSELECT 1\n```",
			wantSQL: "SELECT 1",
			wantOK:  true,
		},
		{
			name:          "fenced block with prose",
			text:          "Here you go:\n```sql\nSELECT 1\n```",
			wantSQL:       "SELECT 1",
			wantRationale: "Here you go:",
			wantOK:        true,
		},
		{
			name:          "bare statement with leading prose",
			text:          "Sure.\nSELECT id FROM users",
			wantSQL:       "SELECT id FROM users",
			wantRationale: "Sure.",
			wantOK:        true,
		},
		{
			name:          "bare statement with trailing prose",
			text:          "SELECT id\nFROM users\n\nThis lists every user.",
			wantSQL:       "SELECT id\nFROM users",
			wantRationale: "This lists every user.",
			wantOK:        true,
		},
		{
			name:    "cte",
			text:    "WITH t AS (SELECT 1 AS n) SELECT n FROM t",
			wantSQL: "WITH t AS (SELECT 1 AS n) SELECT n FROM t",
			wantOK:  true,
		},
		{
			name:   "no sql at all",
			text:   "I cannot help with that.",
			wantOK: false,
		},
		{
			name:   "fenced block holding prose",
			text:   "```\nI cannot help with that.\n```",
			wantOK: false,
		},
		{
			name:          "prose fence followed by bare statement",
			text:          "```\nNote\n```\nSELECT 1",
			wantSQL:       "SELECT 1",
			wantRationale: "```\nNote\n```",
			wantOK:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlText, rationale, ok := ExtractSQL(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSQL, sqlText)
			assert.Equal(t, tt.wantRationale, rationale)
		})
	}
}
