package http

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/db"
	"github.com/zegonz1/housing-tbs/estimator"
	"github.com/zegonz1/housing-tbs/log"
	"github.com/zegonz1/housing-tbs/ml"
	"github.com/zegonz1/housing-tbs/monitoring"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

//go:embed templates/index.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/index.html"))

// Estimator is the part of *estimator.Estimator the handlers use.
type Estimator interface {
	Estimate(ctx context.Context, record dataset.Record) (estimator.Estimate, error)
	EstimateHouse(ctx context.Context, h ml.HouseFeatures) (estimator.Estimate, error)
	Info() (estimator.Info, bool)
	Fitted() bool
}

// History reads the audit trail. *db.Storage implements it.
type History interface {
	RecentEstimates(ctx context.Context, limit int) ([]db.EstimateRecord, error)
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
}

// Services are what the handlers serve from. History and Hub are optional.
type Services struct {
	Estimator Estimator
	History   History
	Hub       *monitoring.WebSocketHub
}

type handlers struct {
	Services
}

// RegisterHandlers adds every route to mux.
func RegisterHandlers(mux *http.ServeMux, services Services) {
	h := &handlers{Services: services}
	mux.HandleFunc("GET /{$}", h.handleForm)
	mux.HandleFunc("POST /estimate", h.handleFormSubmit)
	mux.HandleFunc("POST /api/estimate", h.handleEstimate)
	mux.HandleFunc("POST /api/estimate/house", h.handleEstimateHouse)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("GET /api/estimates", h.handleEstimates)
	mux.HandleFunc("GET /api/training", h.handleTraining)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	if services.Hub != nil {
		mux.HandleFunc("GET /api/ws/estimate", services.Hub.HandleWebSocket)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
}

type fieldView struct {
	ml.HouseField
	Value int
}

// formView is what templates/index.html renders.
type formView struct {
	Fields       []fieldView
	Heating      string
	HeatingTypes []string
	Fitted       bool
	Submitted    bool
	Estimate     string
	Error        string
}

func newFormView(h ml.HouseFeatures, fitted bool) formView {
	view := formView{
		Heating:      h.Heating,
		HeatingTypes: ml.HeatingTypes,
		Fitted:       fitted,
	}
	for _, f := range ml.HouseFields {
		view.Fields = append(view.Fields, fieldView{HouseField: f, Value: h.Field(f.Name)})
	}
	return view
}

func (h *handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, newFormView(ml.DefaultHouseFeatures(), h.Estimator.Fitted()))
}

func (h *handlers) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	features, err := parseHouseForm(r)
	view := newFormView(features, h.Estimator.Fitted())
	view.Submitted = true
	if err != nil {
		view.Error = err.Error()
		h.render(w, http.StatusBadRequest, view)
		return
	}
	est, err := h.Estimator.EstimateHouse(r.Context(), features)
	if err != nil {
		view.Error = err.Error()
		h.render(w, statusFor(err), view)
		return
	}
	view.Estimate = est.Display
	h.render(w, http.StatusOK, view)
}

// parseHouseForm reads the form, starting from the defaults so omitted inputs keep them.
func parseHouseForm(r *http.Request) (ml.HouseFeatures, error) {
	features := ml.DefaultHouseFeatures()
	if err := r.ParseForm(); err != nil {
		return features, errors.Wrap(err, "parse form")
	}
	var bad []string
	for _, f := range ml.HouseFields {
		raw := strings.TrimSpace(r.PostForm.Get(f.Name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			bad = append(bad, f.Name)
			continue
		}
		features.SetField(f.Name, v)
	}
	if heating := r.PostForm.Get("Heating"); heating != "" {
		features.Heating = heating
	}
	if len(bad) > 0 {
		return features, errors.Errorf("not a whole number: %s", strings.Join(bad, ", "))
	}
	return features, nil
}

func (h *handlers) render(w http.ResponseWriter, status int, view formView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, view); err != nil {
		log.Logger().Error("failed to render form", zap.Error(err))
	}
}

func (h *handlers) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var record dataset.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		respondError(w, http.StatusBadRequest, errors.Wrap(err, "invalid record"))
		return
	}
	est, err := h.Estimator.Estimate(r.Context(), record)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, est)
}

func (h *handlers) handleEstimateHouse(w http.ResponseWriter, r *http.Request) {
	features := ml.DefaultHouseFeatures()
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		respondError(w, http.StatusBadRequest, errors.Wrap(err, "invalid house features"))
		return
	}
	est, err := h.Estimator.EstimateHouse(r.Context(), features)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, est)
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	info, ok := h.Estimator.Info()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, ml.ErrNotFitted)
		return
	}
	respondJSON(w, info)
}

func (h *handlers) handleEstimates(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	records, err := h.History.RecentEstimates(r.Context(), historyLimit(r))
	if err != nil {
		log.Logger().Error("failed to load estimates", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]any{"estimates": records})
}

func (h *handlers) handleTraining(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	logs, err := h.History.LoadTrainingLog(r.Context(), historyLimit(r))
	if err != nil {
		log.Logger().Error("failed to load training log", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]any{"training": logs})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok", "fitted": h.Estimator.Fitted()})
}

func historyLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

// statusFor maps package sentinels to status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrSchemaMismatch), errors.Is(err, ml.ErrInvalidFeatures):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ml.ErrNotFitted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes data as JSON, or a 500 when data cannot be encoded.
func respondJSON(w http.ResponseWriter, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Logger().Error("failed to encode json", zap.Error(err))
		respondError(w, http.StatusInternalServerError, errors.Wrap(err, "encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); err != nil {
		log.Logger().Warn("failed to encode json", zap.Error(err))
	}
}
