package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/testutil"
)

func inflationFixture(count int, mean, stddev float64) *testutil.Baselines {
	ref := testutil.NewInvoice("acme-key").Build()
	return testutil.NewBaselines().Set(testutil.BaselineOf(ref.VendorKey(), "office", count, mean, stddev))
}

func TestInflation_Scoring(t *testing.T) {
	tests := []struct {
		name          string
		amount        float64
		wantZ         float64
		wantScore     float64
		wantTriggered bool
	}{
		{name: "far above baseline clamps to one", amount: 400, wantZ: 30, wantScore: 1, wantTriggered: true},
		{name: "below mean scores zero", amount: 95, wantZ: -0.5, wantScore: 0},
		{name: "at mean", amount: 100, wantZ: 0, wantScore: 0},
		{name: "three deviations triggers", amount: 130, wantZ: 3, wantScore: 0.5, wantTriggered: true},
		{name: "just under trigger", amount: 129, wantZ: 2.9, wantScore: 2.9 / 6, wantTriggered: false},
	}

	d := NewInflation(inflationFixture(20, 100, 10), DefaultInflationConfig(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(tt.amount).Build())

			assert.Equal(t, model.DetectorInflation, f.Detector)
			assert.InDelta(t, tt.wantScore, f.Score, 1e-9)
			assert.Equal(t, tt.wantTriggered, f.Triggered())
			require.NotNil(t, f.Evidence.ZScore)
			assert.InDelta(t, tt.wantZ, *f.Evidence.ZScore, 1e-9)
			require.NotNil(t, f.Evidence.BaselineMean)
			assert.InDelta(t, 100, *f.Evidence.BaselineMean, 1e-9)
			assert.Equal(t, 20, f.Evidence.SampleCount)
			assert.InDelta(t, 1.0, f.Confidence, 1e-9)
		})
	}
}

func TestInflation_InsufficientBaseline(t *testing.T) {
	tests := []struct {
		name      string
		baselines *testutil.Baselines
		wantCount int
	}{
		{name: "absent baseline", baselines: testutil.NewBaselines()},
		{name: "below minimum samples", baselines: inflationFixture(4, 100, 10), wantCount: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewInflation(tt.baselines, DefaultInflationConfig(), nil)
			f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(10_000).Build())

			assert.False(t, f.Triggered())
			assert.False(t, f.Degraded(), "insufficient data is neutral, not degraded")
			assert.Zero(t, f.Score)
			assert.Zero(t, f.Confidence)
			assert.Equal(t, tt.wantCount, f.Evidence.SampleCount)
			assert.Contains(t, f.Reason, "insufficient baseline")
		})
	}
}

func TestInflation_StdDevFloor(t *testing.T) {
	d := NewInflation(inflationFixture(5, 100, 0), DefaultInflationConfig(), nil)
	f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(103).Build())

	require.NotNil(t, f.Evidence.ZScore)
	assert.InDelta(t, 3.0, *f.Evidence.ZScore, 1e-9)
	assert.True(t, f.Triggered())
	assert.InDelta(t, 0.25, f.Confidence, 1e-9)
}

func TestInflation_ConfidenceGrowsWithSamples(t *testing.T) {
	for count, want := range map[int]float64{5: 0.25, 10: 0.5, 20: 1, 200: 1} {
		d := NewInflation(inflationFixture(count, 100, 10), DefaultInflationConfig(), nil)
		f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Build())
		assert.InDelta(t, want, f.Confidence, 1e-9, "count %d", count)
	}
}

func TestInflation_ThresholdScalesCap(t *testing.T) {
	cfg := DefaultInflationConfig()
	cfg.Threshold = 1.0 // saturates at z = 4

	d := NewInflation(inflationFixture(20, 100, 10), cfg, nil)
	f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(120).Build())

	assert.InDelta(t, 0.5, f.Score, 1e-9)
	assert.True(t, f.Triggered())
}

func TestInflation_BaselineUnavailable(t *testing.T) {
	baselines := testutil.NewBaselines()
	baselines.Err = errors.New("redis: connection pool timeout")

	d := NewInflation(baselines, DefaultInflationConfig(), nil)
	f := d.Detect(context.Background(), testutil.NewInvoice("inv-1").Build())

	assert.True(t, f.Degraded())
	assert.Zero(t, f.Confidence)
	assert.Contains(t, f.Degradation, "baseline lookup failed")
}
