package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/db"
	"github.com/zegonz1/housing-tbs/estimator"
	"github.com/zegonz1/housing-tbs/ml"
)

// fakeEstimator prices a house at 25 per unit of lot area.
type fakeEstimator struct {
	mu     sync.Mutex
	fitted bool
	last   dataset.Record
}

func (f *fakeEstimator) Estimate(_ context.Context, record dataset.Record) (estimator.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.fitted {
		return estimator.Estimate{}, ml.ErrNotFitted
	}
	f.last = record
	lot, ok := record["LotArea"]
	if !ok {
		return estimator.Estimate{}, errors.Wrap(ml.ErrSchemaMismatch, "missing columns LotArea")
	}
	price := lot.Num * 25
	return estimator.Estimate{Price: price, Display: estimator.FormatPrice(price)}, nil
}

func (f *fakeEstimator) EstimateHouse(ctx context.Context, h ml.HouseFeatures) (estimator.Estimate, error) {
	if err := h.Validate(); err != nil {
		return estimator.Estimate{}, err
	}
	return f.Estimate(ctx, h.Record())
}

func (f *fakeEstimator) Info() (estimator.Info, bool) {
	if !f.fitted {
		return estimator.Info{}, false
	}
	return estimator.Info{Rows: 50, Trees: 100, Generation: 1}, true
}

func (f *fakeEstimator) Fitted() bool { return f.fitted }

type fakeHistory struct {
	limits []int
}

func (f *fakeHistory) RecentEstimates(_ context.Context, limit int) ([]db.EstimateRecord, error) {
	f.limits = append(f.limits, limit)
	return []db.EstimateRecord{{ID: 1, Inputs: dataset.Record{"LotArea": dataset.Numeric(7000)}, Price: 175000}}, nil
}

func (f *fakeHistory) LoadTrainingLog(_ context.Context, limit int) ([]db.TrainingLog, error) {
	f.limits = append(f.limits, limit)
	return []db.TrainingLog{{ID: 1, Dataset: "train.csv", Rows: 50, Trees: 100}}, nil
}

func newMux(services Services) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterHandlers(mux, services)
	return mux
}

func serve(mux http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthHandler(t *testing.T) {
	est := &fakeEstimator{}
	mux := newMux(Services{Estimator: est})

	w := serve(mux, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","fitted":false}`, w.Body.String())

	est.fitted = true
	w = serve(mux, http.MethodGet, "/api/health", "", "")
	assert.JSONEq(t, `{"status":"ok","fitted":true}`, w.Body.String())
}

func TestFormRendersDefaults(t *testing.T) {
	mux := newMux(Services{Estimator: &fakeEstimator{fitted: true}})

	w := serve(mux, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, `name="LotArea"`)
	assert.Contains(t, body, `value="7000"`)
	assert.Contains(t, body, `<option value="GasA" selected>`)
	assert.Contains(t, body, "Hot water")
	assert.NotContains(t, body, "Estimated price")
	assert.NotContains(t, body, "not ready")

	w = serve(mux, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFormSubmit(t *testing.T) {
	est := &fakeEstimator{fitted: true}
	mux := newMux(Services{Estimator: est})

	form := url.Values{"LotArea": {"8000"}, "YearBuilt": {"1999"}, "Heating": {"Hot water"}}
	w := serve(mux, http.MethodPost, "/estimate", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "200,000 $")
	assert.Contains(t, body, `value="8000"`)
	assert.Contains(t, body, `value="1999"`)
	assert.Contains(t, body, `<option value="Hot water" selected>`)
	assert.Equal(t, dataset.Numeric(2), est.last["GarageCars"])
	assert.Equal(t, dataset.Categorical("Hot water"), est.last["Heating"])
}

func TestFormSubmitInvalid(t *testing.T) {
	mux := newMux(Services{Estimator: &fakeEstimator{fitted: true}})

	w := serve(mux, http.MethodPost, "/estimate", "application/x-www-form-urlencoded",
		url.Values{"YearBuilt": {"1700"}}.Encode())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "YearBuilt must be at least 1800")
	assert.NotContains(t, w.Body.String(), "Estimated price")

	w = serve(mux, http.MethodPost, "/estimate", "application/x-www-form-urlencoded",
		url.Values{"LotArea": {"big"}}.Encode())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not a whole number: LotArea")
}

func TestFormBeforeFit(t *testing.T) {
	mux := newMux(Services{Estimator: &fakeEstimator{}})

	w := serve(mux, http.MethodGet, "/", "", "")
	assert.Contains(t, w.Body.String(), "not ready")

	w = serve(mux, http.MethodPost, "/estimate", "application/x-www-form-urlencoded", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIEstimate(t *testing.T) {
	est := &fakeEstimator{fitted: true}
	mux := newMux(Services{Estimator: est})

	w := serve(mux, http.MethodPost, "/api/estimate", "application/json", `{"LotArea": 7000, "Heating": "GasA", "PoolArea": null}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"price": 175000, "display": "175,000 $", "cached": false}`, w.Body.String())
	assert.True(t, est.last["PoolArea"].IsMissing())

	w = serve(mux, http.MethodPost, "/api/estimate", "application/json", `{"LotArea": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid record")

	w = serve(mux, http.MethodPost, "/api/estimate", "application/json", `{"Heating": "GasA"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["error"], "LotArea")

	est.fitted = false
	w = serve(mux, http.MethodPost, "/api/estimate", "application/json", `{"LotArea": 7000}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIEstimateHouse(t *testing.T) {
	mux := newMux(Services{Estimator: &fakeEstimator{fitted: true}})

	w := serve(mux, http.MethodPost, "/api/estimate/house", "application/json", `{"LotArea": 4000, "Heating": "Wall"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100,000 $", decode(t, w)["display"])

	w = serve(mux, http.MethodPost, "/api/estimate/house", "application/json", `{"LotArea": 4000, "Heating": "Coal"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Heating must be one of")

	w = serve(mux, http.MethodPost, "/api/estimate/house", "application/json", `{"LotArea": "wide"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelHandler(t *testing.T) {
	est := &fakeEstimator{}
	mux := newMux(Services{Estimator: est})

	w := serve(mux, http.MethodGet, "/api/model", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	est.fitted = true
	w = serve(mux, http.MethodGet, "/api/model", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 50.0, body["rows"])
	assert.Equal(t, 100.0, body["trees"])
}

// unencodableEstimator reports a model whose info cannot be written as JSON.
type unencodableEstimator struct {
	*fakeEstimator
}

func (unencodableEstimator) Info() (estimator.Info, bool) {
	return estimator.Info{Rows: 2, TrainR2: math.NaN()}, true
}

func TestModelHandlerEncodeFailure(t *testing.T) {
	mux := newMux(Services{Estimator: unencodableEstimator{&fakeEstimator{fitted: true}}})
	w := serve(mux, http.MethodGet, "/api/model", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["error"], "encode response")
}

func TestHistoryHandlers(t *testing.T) {
	history := &fakeHistory{}
	mux := newMux(Services{Estimator: &fakeEstimator{fitted: true}, History: history})

	w := serve(mux, http.MethodGet, "/api/estimates", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	estimates := decode(t, w)["estimates"].([]any)
	require.Len(t, estimates, 1)
	assert.Equal(t, 175000.0, estimates[0].(map[string]any)["price"])

	serve(mux, http.MethodGet, "/api/estimates?limit=5", "", "")
	serve(mux, http.MethodGet, "/api/training?limit=100000", "", "")
	w = serve(mux, http.MethodGet, "/api/training?limit=abc", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["training"], 1)
	assert.Equal(t, []int{defaultHistoryLimit, 5, maxHistoryLimit, defaultHistoryLimit}, history.limits)

	mux = newMux(Services{Estimator: &fakeEstimator{fitted: true}})
	w = serve(mux, http.MethodGet, "/api/estimates", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	mux := newMux(Services{Estimator: &fakeEstimator{}})
	w := serve(mux, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "housing_")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.Wrap(ml.ErrSchemaMismatch, "x")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.Wrap(ml.ErrInvalidFeatures, "x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(ml.ErrNotFitted))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
