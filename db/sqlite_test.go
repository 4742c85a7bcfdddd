package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegonz1/housing-tbs/dataset"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := NewStorage(filepath.Join(t.TempDir(), "nested", "housing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestEstimatesRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	for i, price := range []float64{182345.6, 201000, 99000} {
		id, err := storage.SaveEstimate(ctx, EstimateRecord{
			Inputs: dataset.Record{
				"LotArea": dataset.Numeric(float64(7000 + i)),
				"Heating": dataset.Categorical("GasA"),
				"Alley":   dataset.Missing(),
			},
			Price:  price,
			Cached: i == 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	records, err := storage.RecentEstimates(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 99000.0, records[0].Price)
	assert.True(t, records[0].Cached)
	assert.Equal(t, dataset.Numeric(7002), records[0].Inputs["LotArea"])
	assert.True(t, records[0].Inputs["Alley"].IsMissing())
	assert.Equal(t, 201000.0, records[1].Price)
	assert.False(t, records[1].CreatedAt.IsZero())
}

func TestTrainingLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	logs, err := storage.LoadTrainingLog(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	trainedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = storage.SaveTrainingLog(ctx, TrainingLog{
		Dataset:    "data/train_light.csv",
		Rows:       1460,
		Features:   16,
		Trees:      100,
		R2:         0.97,
		DurationMS: 850,
		TrainedAt:  trainedAt,
	})
	require.NoError(t, err)

	logs, err = storage.LoadTrainingLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1460, logs[0].Rows)
	assert.Equal(t, 100, logs[0].Trees)
	assert.InDelta(t, 0.97, logs[0].R2, 1e-12)
	assert.True(t, trainedAt.Equal(logs[0].TrainedAt))
}

func TestNewStorageErrors(t *testing.T) {
	_, err := NewStorage("")
	assert.Error(t, err)

	storage, err := NewStorage(":memory:")
	require.NoError(t, err)
	assert.NoError(t, storage.Close())
}
