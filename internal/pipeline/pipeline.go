package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/queryscope/queryscope/internal/analyzer"
	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/qerr"
	"github.com/queryscope/queryscope/internal/translator"
)

// Service runs the question-to-answer pipeline: fetch schema, translate the
// question to SQL, execute it, analyze the result. Connections are opened
// per request and closed when the request finishes.
type Service struct {
	translator   *translator.Translator
	openExecutor ExecutorFactory
	analyze      func(*database.ResultSet, analyzer.Options) (*analyzer.Report, error)
	analyzerOpts analyzer.Options
	limits       database.Limits
	logger       *zap.Logger
}

// New assembles a Service. A nil logger is replaced with a no-op one.
func New(t *translator.Translator, open ExecutorFactory, opts analyzer.Options, limits database.Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		translator:   t,
		openExecutor: open,
		analyze:      analyzer.Analyze,
		analyzerOpts: opts,
		limits:       limits,
		logger:       logger,
	}
}

// Handle answers one natural-language question against the described
// database. Failures in schema discovery, translation or execution abort
// the request; an analysis failure degrades to a data-only response.
func (s *Service) Handle(ctx context.Context, cfg database.Descriptor, question string) (*QueryResponse, error) {
	exec, err := s.openExecutor(ctx, cfg, s.limits)
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	schema, err := exec.FetchSchema(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("schema fetched",
		zap.Int("tables", schema.TotalTables),
		zap.Bool("truncated", schema.Truncated))

	translated, err := s.translator.Translate(ctx, question, schema, cfg.Dialect)
	if err != nil {
		return nil, err
	}
	s.logger.Info("question translated", zap.String("sql", translated.SQL))

	rs, err := exec.ExecuteQuery(ctx, translated.SQL)
	if err != nil {
		return nil, qerr.WithSQL(err, translated.SQL)
	}
	if rs.Truncated {
		s.logger.Warn("result set truncated", zap.Int("max_rows", s.limits.MaxRows))
	}

	report, err := s.analyze(rs, s.analyzerOpts)
	if err != nil {
		// The rows are the answer; charts and metrics are garnish.
		s.logger.Warn("analysis failed, returning data only", zap.Error(err))
		report = analyzer.EmptyReport()
	}

	return buildResponse(translated.SQL, rs, report), nil
}

// TestConnection verifies that the descriptor reaches a live database.
func (s *Service) TestConnection(ctx context.Context, cfg database.Descriptor) error {
	exec, err := s.openExecutor(ctx, cfg, s.limits)
	if err != nil {
		return err
	}
	defer exec.Close()
	return exec.Ping(ctx)
}

func buildResponse(sqlText string, rs *database.ResultSet, report *analyzer.Report) *QueryResponse {
	rows := rs.Rows
	if rows == nil {
		rows = []database.Row{}
	}
	columns := rs.Columns
	if columns == nil {
		columns = []string{}
	}
	return &QueryResponse{
		Data:             rows,
		Columns:          columns,
		ChartSuggestions: report.ChartSuggestions,
		SQLQuery:         sqlText,
		Metrics:          report.Metrics,
		Visualizations:   report.Visualizations,
		Insights:         report.Insights,
		Metadata: ResponseMetadata{
			RawData:    rows,
			DataPoints: len(rows),
		},
	}
}
