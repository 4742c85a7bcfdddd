package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEstimateCounters(t *testing.T) {
	before := testutil.ToFloat64(EstimatesTotal.WithLabelValues(OutcomeCached))
	EstimatesTotal.WithLabelValues(OutcomeCached).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EstimatesTotal.WithLabelValues(OutcomeCached)))

	ModelFitted.Set(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(ModelFitted))

	FitSeconds.Observe(0.5)
	assert.Equal(t, 1, testutil.CollectAndCount(FitSeconds))
}
