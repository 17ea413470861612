package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
	"github.com/the-scouts/incognita-sub000/internal/model"
	"github.com/the-scouts/incognita-sub000/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeDistricts struct {
	districts []boundary.District
	err       error
}

func (f fakeDistricts) ListDistricts(context.Context) ([]boundary.District, error) {
	return f.districts, f.err
}

type fakeRuns struct {
	runs   []model.Run
	filter store.RunFilter
	err    error
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*model.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.filter = filter
	return f.runs, f.err
}

func square(x, y float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{x, y, x + 1, y, x + 1, y + 1, x, y + 1, x, y}, []int{10})
}

func newTestServer(runs RunReader) *httptest.Server {
	src := fakeDistricts{districts: []boundary.District{
		{ID: "101", Name: "Leeds North", Geometry: square(-1.6, 53.8)},
		{ID: "102", Name: "Leeds South", Geometry: square(-1.5, 53.7)},
	}}
	return httptest.NewServer(New(src, runs).Handler())
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListDistricts(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/districts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Leeds South", fc.Features[1].Properties["name"])
}

func TestGetDistrict(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/districts/102")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Leeds South")
	assert.NotContains(t, string(body), "Leeds North")

	resp, _ = get(t, ts.URL+"/districts/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListDistricts_SourceError(t *testing.T) {
	ts := httptest.NewServer(New(fakeDistricts{err: errors.New("db down")}, nil).Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/districts")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "db down")
}

func TestRuns_Disabled(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/runs")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	runs := &fakeRuns{runs: []model.Run{
		{ID: "r1", Census: "census.csv", Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now,
			Result: &model.RunResult{Districts: 2}},
	}}
	ts := newTestServer(runs)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/runs?status=complete&limit=5&offset=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.RunFilter{Status: model.RunStatusComplete, Limit: 5, Offset: 1}, runs.filter)

	var got []model.Run
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, 2, got[0].Result.Districts)
}

func TestListRuns_Empty(t *testing.T) {
	ts := newTestServer(&fakeRuns{})
	defer ts.Close()

	resp, body := get(t, ts.URL+"/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestListRuns_BadParams(t *testing.T) {
	ts := newTestServer(&fakeRuns{})
	defer ts.Close()

	for _, q := range []string{"status=queued", "limit=abc", "offset=-1"} {
		resp, _ := get(t, ts.URL+"/runs?"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestGetRun(t *testing.T) {
	ts := newTestServer(&fakeRuns{runs: []model.Run{{ID: "r1", Status: model.RunStatusFailed, Error: "boom"}}})
	defer ts.Close()

	resp, body := get(t, ts.URL+"/runs/r1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"error":"boom"`)

	resp, _ = get(t, ts.URL+"/runs/r2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/districts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
