// Package anomaly flags AQI values that deviate from a rolling per-city
// baseline. Baselines are re-derived from stored history every cycle, so
// the detector keeps no state between runs.
package anomaly

import (
	"math"

	"go.uber.org/zap"
)

// State describes how much baseline history backs a verdict.
type State string

const (
	// StateInsufficient: no prior results at all.
	StateInsufficient State = "insufficient-history"
	// StateWarming: some history, fewer than MinPoints results.
	StateWarming State = "warming"
	// StateActive: full statistical baseline available.
	StateActive State = "active"
)

// Config holds the detector tunables. Values are deliberately not
// hard-coded anywhere else; see config.LoadConfig for the environment knobs.
type Config struct {
	// Threshold is the multiple of the baseline standard deviation
	// beyond which a value is flagged.
	Threshold float64
	// MinPoints is the number of prior results needed for a
	// statistical verdict.
	MinPoints int
	// AbsoluteLimit is the fallback AQI cutoff used while history is
	// insufficient or the baseline has zero variance.
	AbsoluteLimit float64
}

// Verdict is the outcome of evaluating one value against its baseline.
// Flagged is nil when no verdict could be given; Deviation is nil unless
// a z-score was actually computed, so "no score" is never stored as 0.
type Verdict struct {
	State     State
	Flagged   *bool
	Deviation *float64
}

// Detector evaluates values against rolling baselines.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2.5
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 8
	}
	if cfg.AbsoluteLimit <= 0 {
		cfg.AbsoluteLimit = 300
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Evaluate compares value against the baseline built from prior values
// (oldest first, excluding value itself). With a full baseline the test is
// |z| > Threshold; with zero variance or a short baseline it falls back to
// the absolute cutoff. With no history at all there is no verdict.
func (d *Detector) Evaluate(baseline []float64, value float64) Verdict {
	switch {
	case len(baseline) == 0:
		return Verdict{State: StateInsufficient}

	case len(baseline) < d.cfg.MinPoints:
		flagged := value > d.cfg.AbsoluteLimit
		d.logger.Debug("anomaly baseline warming, using absolute cutoff",
			zap.Int("baseline_points", len(baseline)),
			zap.Int("required", d.cfg.MinPoints),
			zap.Bool("flagged", flagged))
		return Verdict{State: StateWarming, Flagged: &flagged}
	}

	mean, std := meanStd(baseline)
	if std == 0 {
		flagged := value > d.cfg.AbsoluteLimit
		return Verdict{State: StateActive, Flagged: &flagged}
	}

	z := math.Abs((value - mean) / std)
	flagged := z > d.cfg.Threshold
	return Verdict{State: StateActive, Flagged: &flagged, Deviation: &z}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}
