package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/pipeline"
	"github.com/queryscope/queryscope/internal/qerr"
)

type stubQueryService struct {
	resp    *pipeline.QueryResponse
	err     error
	pingErr error

	lastDescriptor database.Descriptor
	lastQuestion   string
}

func (s *stubQueryService) Handle(ctx context.Context, cfg database.Descriptor, question string) (*pipeline.QueryResponse, error) {
	s.lastDescriptor = cfg
	s.lastQuestion = question
	return s.resp, s.err
}

func (s *stubQueryService) TestConnection(ctx context.Context, cfg database.Descriptor) error {
	s.lastDescriptor = cfg
	return s.pingErr
}

func doRequest(t *testing.T, svc QueryService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(svc, zap.NewNop())
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, &stubQueryService{}, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestQueryEndpoint(t *testing.T) {
	svc := &stubQueryService{
		resp: &pipeline.QueryResponse{
			Data:     []database.Row{{"x": database.NumberScalar(1)}},
			Columns:  []string{"x"},
			SQLQuery: "SELECT 1 AS x",
			Insights: []string{"The query returned 1 rows across 1 columns."},
			Metadata: pipeline.ResponseMetadata{RawData: []database.Row{{"x": database.NumberScalar(1)}}, DataPoints: 1},
		},
	}

	body := `{"config":{"db_type":"postgresql","host":"localhost","port":5432,"username":"u","password":"p","dbname":"shop"},"query":"how many x"}`
	rec := doRequest(t, svc, http.MethodPost, "/api/query", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SELECT 1 AS x", resp["sql_query"])
	assert.Equal(t, float64(1), resp["metadata"].(map[string]any)["data_points"])

	// db_type normalization and descriptor mapping.
	assert.Equal(t, "postgres", svc.lastDescriptor.Dialect)
	assert.Equal(t, "shop", svc.lastDescriptor.DBName)
	assert.Equal(t, "how many x", svc.lastQuestion)
}

func TestQueryEndpointEmptyQuestion(t *testing.T) {
	rec := doRequest(t, &stubQueryService{}, http.MethodPost, "/api/query", `{"config":{},"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointBadJSON(t *testing.T) {
	rec := doRequest(t, &stubQueryService{}, http.MethodPost, "/api/query", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"unsafe query", qerr.New(qerr.KindUnsafeQuery, "only SELECT and WITH statements are allowed"), http.StatusBadRequest, "unsafe_query"},
		{"execution", qerr.New(qerr.KindQueryExecution, "query execution failed"), http.StatusBadRequest, "query_execution_error"},
		{"permission", qerr.New(qerr.KindPermission, "permission denied by database"), http.StatusForbidden, "permission_error"},
		{"translation", qerr.New(qerr.KindTranslation, "completion service is unavailable"), http.StatusBadGateway, "translation_error"},
		{"connection", qerr.New(qerr.KindConnection, "failed to connect to database"), http.StatusBadGateway, "connection_error"},
		{"timeout", qerr.New(qerr.KindTimeout, "query exceeded the execution deadline"), http.StatusGatewayTimeout, "timeout_error"},
		{"untagged", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubQueryService{err: tt.err}
			rec := doRequest(t, svc, http.MethodPost, "/api/query", `{"config":{},"query":"q"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestQueryEndpointErrorIncludesSQL(t *testing.T) {
	err := qerr.WithSQL(qerr.New(qerr.KindQueryExecution, "query execution failed"), "SELECT bogus")
	svc := &stubQueryService{err: err}
	rec := doRequest(t, svc, http.MethodPost, "/api/query", `{"config":{},"query":"q"}`)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SELECT bogus", resp.SQLQuery)
}

func TestTestConnectionEndpoint(t *testing.T) {
	rec := doRequest(t, &stubQueryService{}, http.MethodPost, "/api/test-connection", `{"config":{"db_type":"mysql","host":"h","port":3306,"username":"u","password":"p","dbname":"d"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestTestConnectionEndpointFailure(t *testing.T) {
	svc := &stubQueryService{pingErr: qerr.New(qerr.KindConnection, "failed to connect to database")}
	rec := doRequest(t, svc, http.MethodPost, "/api/test-connection", `{"config":{}}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	rec := doRequest(t, &stubQueryService{}, http.MethodGet, "/api/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
