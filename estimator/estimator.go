package estimator

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zegonz1/housing-tbs/config"
	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/db"
	"github.com/zegonz1/housing-tbs/log"
	"github.com/zegonz1/housing-tbs/ml"
	"github.com/zegonz1/housing-tbs/monitoring"
)

// Estimate is a served prediction.
type Estimate struct {
	Price   float64 `json:"price"`
	Display string  `json:"display"`
	Cached  bool    `json:"cached"`
}

// Info describes the pipeline currently serving estimates.
type Info struct {
	Dataset      string             `json:"dataset"`
	Rows         int                `json:"rows"`
	Schema       dataset.Schema     `json:"schema"`
	FeatureNames []string           `json:"feature_names"`
	Importances  map[string]float64 `json:"importances"`
	Medians      map[string]float64 `json:"medians"`
	Modes        map[string]string  `json:"modes"`
	Profiles     []dataset.Profile  `json:"profiles"`
	Trees        int                `json:"trees"`
	TrainR2      float64            `json:"train_r2"`
	FittedAt     time.Time          `json:"fitted_at"`
	FitDuration  time.Duration      `json:"fit_duration_ns"`
	Generation   uint64             `json:"generation"`
}

// History records served estimates and fits. *db.Storage implements it.
type History interface {
	SaveEstimate(ctx context.Context, rec db.EstimateRecord) (int64, error)
	SaveTrainingLog(ctx context.Context, log db.TrainingLog) (int64, error)
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithHistory records estimates and fits in h.
func WithHistory(h History) Option {
	return func(e *Estimator) { e.history = h }
}

// WithFitListener calls fn after every successful fit.
func WithFitListener(fn func(Info)) Option {
	return func(e *Estimator) { e.listeners = append(e.listeners, fn) }
}

type state struct {
	pipeline *ml.Pipeline
	info     Info
}

// Estimator fits the pipeline once and serves estimates from it. A refit builds a new
// pipeline and swaps it in; estimates in flight finish on the pipeline they started with.
type Estimator struct {
	cfg       *config.Config
	current   atomic.Pointer[state]
	cache     *lru.Cache[string, float64]
	history   History
	listeners []func(Info)

	fitMu      sync.Mutex
	generation uint64
}

// New creates an estimator. Nothing is loaded until Fit.
func New(cfg *config.Config, opts ...Option) (*Estimator, error) {
	e := &Estimator{cfg: cfg}
	if cfg.Cache.Size > 0 {
		cache, err := lru.New[string, float64](cfg.Cache.Size)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		e.cache = cache
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Fit loads the dataset, fits a new pipeline and starts serving it.
func (e *Estimator) Fit(ctx context.Context) error {
	e.fitMu.Lock()
	defer e.fitMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	st, err := e.fit()
	if err != nil {
		monitoring.FitsTotal.WithLabelValues("failed").Inc()
		return err
	}
	elapsed := time.Since(start)
	e.generation++
	st.info.FittedAt = time.Now()
	st.info.FitDuration = elapsed
	st.info.Generation = e.generation

	e.current.Store(st)
	if e.cache != nil {
		e.cache.Purge()
	}
	monitoring.FitsTotal.WithLabelValues("ok").Inc()
	monitoring.FitSeconds.Observe(elapsed.Seconds())
	monitoring.TrainingRows.Set(float64(st.info.Rows))
	monitoring.ModelFitted.Set(1)
	log.Logger().Info("pipeline fitted",
		zap.String("dataset", st.info.Dataset),
		zap.Int("rows", st.info.Rows),
		zap.Int("features", len(st.info.FeatureNames)),
		zap.Float64("train_r2", st.info.TrainR2),
		zap.Duration("duration", elapsed))

	if e.history != nil {
		if _, err := e.history.SaveTrainingLog(ctx, db.TrainingLog{
			Dataset:    st.info.Dataset,
			Rows:       st.info.Rows,
			Features:   len(st.info.FeatureNames),
			Trees:      st.info.Trees,
			R2:         st.info.TrainR2,
			DurationMS: elapsed.Milliseconds(),
		}); err != nil {
			log.Logger().Warn("failed to save training log", zap.Error(err))
		}
	}
	for _, fn := range e.listeners {
		fn(st.info)
	}
	return nil
}

func (e *Estimator) fit() (*state, error) {
	dc := e.cfg.Dataset
	ds, err := dataset.Load(dc.Path,
		dataset.WithTarget(dc.Target),
		dataset.WithSheet(dc.Sheet),
		dataset.WithRequiredColumns(dc.RequiredColumns...))
	if err != nil {
		return nil, err
	}
	for _, p := range ds.Profiles {
		log.Logger().Debug("column profile",
			zap.String("column", p.Name),
			zap.String("kind", p.Kind),
			zap.Int("missing", p.Missing),
			zap.Int("distinct", p.Distinct))
	}

	pipeline, err := ml.Train(ds, ForestOptions(e.cfg.Model)...)
	if err != nil {
		return nil, err
	}
	y, _ := ml.TargetVector(ds.Target)
	pred, err := pipeline.PredictBatch(ds.Records)
	if err != nil {
		return nil, errors.Wrap(ml.ErrTraining, err.Error())
	}

	return &state{
		pipeline: pipeline,
		info: Info{
			Dataset:      dc.Path,
			Rows:         pipeline.Rows(),
			Schema:       pipeline.Schema(),
			FeatureNames: pipeline.FeatureNames(),
			Importances:  pipeline.FeatureImportances(),
			Medians:      pipeline.Medians(),
			Modes:        pipeline.Modes(),
			Profiles:     ds.Profiles,
			Trees:        pipeline.Trees(),
			TrainR2:      ml.R2(pred, y),
		},
	}, nil
}

// ForestOptions maps the model section of the config onto forest options.
func ForestOptions(mc config.ModelConfig) []ml.RandomForestOption {
	opts := []ml.RandomForestOption{
		ml.WithNEstimators(mc.NEstimators),
		ml.WithMaxDepth(mc.MaxDepth),
		ml.WithMinSamplesSplit(mc.MinSamplesSplit),
		ml.WithMinSamplesLeaf(mc.MinSamplesLeaf),
		ml.WithMaxFeatures(mc.MaxFeatures),
		ml.WithBootstrap(mc.Bootstrap),
		ml.WithRandomState(mc.RandomState),
	}
	if mc.Workers > 0 {
		opts = append(opts, ml.WithWorkers(mc.Workers))
	}
	return opts
}

// Fitted reports whether a pipeline is serving.
func (e *Estimator) Fitted() bool {
	return e.current.Load() != nil
}

// Info describes the serving pipeline. ok is false before the first fit.
func (e *Estimator) Info() (info Info, ok bool) {
	st := e.current.Load()
	if st == nil {
		return Info{}, false
	}
	return st.info, true
}

// Estimate predicts the price of one record.
func (e *Estimator) Estimate(ctx context.Context, record dataset.Record) (Estimate, error) {
	start := time.Now()
	defer func() { monitoring.EstimateSeconds.Observe(time.Since(start).Seconds()) }()

	st := e.current.Load()
	if st == nil {
		monitoring.EstimatesTotal.WithLabelValues(monitoring.OutcomeNotFitted).Inc()
		return Estimate{}, ml.ErrNotFitted
	}

	key := recordKey(st.info.Generation, st.info.Schema.Columns(), record)
	if e.cache != nil {
		if price, ok := e.cache.Get(key); ok {
			monitoring.EstimatesTotal.WithLabelValues(monitoring.OutcomeCached).Inc()
			est := Estimate{Price: price, Display: FormatPrice(price), Cached: true}
			e.record(ctx, record, est)
			return est, nil
		}
	}

	price, err := st.pipeline.Predict(record)
	if err != nil {
		if errors.Is(err, ml.ErrSchemaMismatch) {
			monitoring.EstimatesTotal.WithLabelValues(monitoring.OutcomeSchemaMismatch).Inc()
		} else {
			monitoring.EstimatesTotal.WithLabelValues(monitoring.OutcomeError).Inc()
		}
		return Estimate{}, err
	}
	if e.cache != nil {
		e.cache.Add(key, price)
	}
	monitoring.EstimatesTotal.WithLabelValues(monitoring.OutcomeOK).Inc()
	est := Estimate{Price: price, Display: FormatPrice(price)}
	e.record(ctx, record, est)
	return est, nil
}

// EstimateHouse validates the form values and estimates them.
func (e *Estimator) EstimateHouse(ctx context.Context, h ml.HouseFeatures) (Estimate, error) {
	if err := h.Validate(); err != nil {
		return Estimate{}, err
	}
	return e.Estimate(ctx, h.Record())
}

func (e *Estimator) record(ctx context.Context, record dataset.Record, est Estimate) {
	if e.history == nil {
		return
	}
	if _, err := e.history.SaveEstimate(ctx, db.EstimateRecord{
		Inputs: record,
		Price:  est.Price,
		Cached: est.Cached,
	}); err != nil {
		log.Logger().Warn("failed to save estimate", zap.Error(err))
	}
}

// recordKey identifies a record by the fitted columns only, so extra columns share entries.
// Names and labels are quoted so that no label can forge another column's part of the key.
func recordKey(generation uint64, columns []string, record dataset.Record) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))
	for _, name := range sorted {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(name))
		v, ok := record[name]
		switch {
		case !ok:
			b.WriteString("!")
		case v.Kind == dataset.KindNumeric:
			b.WriteString("=n:")
			b.WriteString(strconv.FormatFloat(v.Num, 'g', -1, 64))
		case v.Kind == dataset.KindCategorical:
			b.WriteString("=s:")
			b.WriteString(strconv.Quote(v.Str))
		default:
			b.WriteString("=?")
		}
	}
	return b.String()
}

// FormatPrice truncates to whole dollars and groups thousands: 182345.9 -> "182,345 $".
func FormatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "- $"
	}
	return message.NewPrinter(language.English).Sprintf("%d $", int64(price))
}
