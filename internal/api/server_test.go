package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-service/internal/scanner"
	"crypto-signal-service/internal/store"
)

type stubAnalyses struct {
	history []*store.AnalysisRecord
	summary *store.LearningSummary
}

func (s *stubAnalyses) History(context.Context, int64, string, time.Duration) ([]*store.AnalysisRecord, error) {
	return s.history, nil
}

func (s *stubAnalyses) Summary(context.Context, int64, string, time.Duration) (*store.LearningSummary, error) {
	return s.summary, nil
}

type stubRecords struct {
	rec *store.AnalysisRecord
}

func (s *stubRecords) GetByID(_ context.Context, id string) (*store.AnalysisRecord, error) {
	if s.rec != nil && s.rec.ID == id {
		return s.rec, nil
	}
	return nil, store.ErrNotFound
}

type stubTracker struct{ n int64 }

func (s *stubTracker) ActiveCount() int64 { return s.n }

type stubScanner struct{ st scanner.Status }

func (s *stubScanner) Status() scanner.Status { return s.st }

type stubStreams struct{ m map[string]int }

func (s *stubStreams) Status() map[string]int { return s.m }

func newTestServer(analyses *stubAnalyses, records *stubRecords) *Server {
	return NewServer(Config{Addr: ":0"}, analyses, records,
		&stubTracker{n: 3},
		&stubScanner{st: scanner.Status{AnalysesFired: 7}},
		&stubStreams{m: map[string]int{"1m": 2}},
		zerolog.Nop())
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubAnalyses{}, &stubRecords{})
	w := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAnalysesRequiresUserID(t *testing.T) {
	s := newTestServer(&stubAnalyses{}, &stubRecords{})
	w := do(s, http.MethodGet, "/api/v1/analyses")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAnalyses(t *testing.T) {
	s := newTestServer(&stubAnalyses{history: []*store.AnalysisRecord{
		{ID: "BTCUSDT_1_111", Symbol: "BTCUSDT"},
	}}, &stubRecords{})
	w := do(s, http.MethodGet, "/api/v1/analyses?user_id=111&symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetAnalysisNotFound(t *testing.T) {
	s := newTestServer(&stubAnalyses{}, &stubRecords{})
	w := do(s, http.MethodGet, "/api/v1/analyses/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAnalysisByID(t *testing.T) {
	s := newTestServer(&stubAnalyses{}, &stubRecords{rec: &store.AnalysisRecord{ID: "X_1_1"}})
	w := do(s, http.MethodGet, "/api/v1/analyses/X_1_1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSummaryRequiresSymbol(t *testing.T) {
	s := newTestServer(&stubAnalyses{summary: &store.LearningSummary{}}, &stubRecords{})
	w := do(s, http.MethodGet, "/api/v1/summary?user_id=111")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoints(t *testing.T) {
	s := newTestServer(&stubAnalyses{}, &stubRecords{})

	w := do(s, http.MethodGet, "/api/v1/tracker/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":3`)

	w = do(s, http.MethodGet, "/api/v1/scanner/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"analyses_fired":7`)

	w = do(s, http.MethodGet, "/api/v1/streams/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"1m":2`)
}
