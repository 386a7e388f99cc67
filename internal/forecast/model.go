// Package forecast scores pre-trained regression artifacts against recent
// feature history to produce short-horizon AQI predictions. Artifacts are
// trained and versioned out-of-band; this package only loads and scores.
package forecast

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scorer is the capability contract for a loaded model artifact: an opaque
// scoring function with a fixed input-feature contract. Swapping artifacts
// never touches pipeline logic.
type Scorer interface {
	Version() string
	Features() []string
	Score(features map[string]float64) (float64, error)
}

// linearModel is the on-disk artifact format: a linear regression with a
// bias term and named feature weights, exported to JSON at training time.
type linearModel struct {
	ModelVersion string             `json:"version"`
	HorizonHours int                `json:"horizon_hours"`
	Bias         float64            `json:"bias"`
	Weights      map[string]float64 `json:"weights"`
}

func (m *linearModel) Version() string { return m.ModelVersion }

func (m *linearModel) Features() []string {
	names := make([]string, 0, len(m.Weights))
	for name := range m.Weights {
		names = append(names, name)
	}
	return names
}

// Score computes the weighted sum over the model's own feature list.
// Features missing from the input contribute zero, extras are ignored,
// mirroring how training aligned its columns.
func (m *linearModel) Score(features map[string]float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, fmt.Errorf("forecast: model %s has no weights", m.ModelVersion)
	}
	value := m.Bias
	for name, weight := range m.Weights {
		value += weight * features[name]
	}
	return value, nil
}

// LoadModel resolves the artifact for a city and horizon, preferring a
// city-specific file over the generic one:
//
//	<dir>/<city>_h<n>.json
//	<dir>/aqi_pred_h<n>.json
func LoadModel(dir, city string, horizon int) (Scorer, error) {
	attempts := []string{
		filepath.Join(dir, fmt.Sprintf("%s_h%d.json", strings.ToLower(city), horizon)),
		filepath.Join(dir, fmt.Sprintf("aqi_pred_h%d.json", horizon)),
	}

	var lastErr error
	for _, path := range attempts {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}

		var m linearModel
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("forecast: parsing model %s: %w", path, err)
		}
		if m.ModelVersion == "" {
			return nil, fmt.Errorf("forecast: model %s is missing a version", path)
		}
		return &m, nil
	}

	return nil, fmt.Errorf("forecast: no model artifact for %s h%d: %w", city, horizon, lastErr)
}
