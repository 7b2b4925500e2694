package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
)

// Artifact is the serialized form of a trained logistic model. The scorer
// reads `<name>_latest.json` from the artifact directory and hot-reloads it
// when the file changes.
type Artifact struct {
	Model struct {
		Type         string   `json:"type"`
		Algorithm    string   `json:"algorithm"`
		Version      string   `json:"version"`
		FeatureNames []string `json:"feature_names"`
		Weights      struct {
			Bias         float64   `json:"bias"`
			Coefficients []float64 `json:"coefficients"`
		} `json:"weights"`
	} `json:"model"`
}

// Result is what a single scoring call produces. Probability is in [0,1] and
// the explanation attributes the pre-sigmoid score to individual features.
type Result struct {
	Probability  float64
	IsSepsisRisk bool
	ModelVersion string
	FeaturesUsed map[string]float64
	Explanation  *models.Explanation
}

type Scorer struct {
	dir       string
	name      string
	threshold float64
	cache     *cachedArtifact
	mu        sync.RWMutex
}

type cachedArtifact struct {
	artifact Artifact
	modTime  int64
}

func NewScorer(dir, name string, threshold float64) *Scorer {
	return &Scorer{dir: dir, name: name, threshold: threshold}
}

// Score computes the sepsis risk probability for a feature vector. Features
// absent from the vector contribute zero, mirroring the mean-imputation the
// training pipeline applies.
func (s *Scorer) Score(features map[string]float64) (Result, error) {
	artifact, err := s.loadArtifact()
	if err != nil {
		return Result{}, err
	}
	names := artifact.Model.FeatureNames
	coeffs := artifact.Model.Weights.Coefficients
	if len(names) == 0 {
		return Result{}, fmt.Errorf("artifact missing feature names")
	}
	if len(coeffs) != len(names) {
		return Result{}, fmt.Errorf("artifact has %d coefficients for %d features", len(coeffs), len(names))
	}

	used := make(map[string]float64, len(names))
	contributions := make([]float64, len(names))
	sum := artifact.Model.Weights.Bias
	for i, name := range names {
		value := features[name]
		used[name] = value
		contributions[i] = coeffs[i] * value
		sum += contributions[i]
	}

	probability := sigmoid(sum)
	version := artifact.Model.Version
	if version == "" {
		version = "unversioned"
	}

	return Result{
		Probability:  probability,
		IsSepsisRisk: probability >= s.threshold,
		ModelVersion: version,
		FeaturesUsed: used,
		Explanation: &models.Explanation{
			Features:   names,
			ShapValues: contributions,
			BaseValue:  artifact.Model.Weights.Bias,
		},
	}, nil
}

func (s *Scorer) loadArtifact() (Artifact, error) {
	latest := filepath.Join(s.dir, fmt.Sprintf("%s_latest.json", s.name))
	info, err := os.Stat(latest)
	if err != nil {
		// No trained artifact on disk yet. The service still has to answer,
		// so fall back to the built-in baseline model.
		return defaultArtifact(), nil
	}
	mod := info.ModTime().UnixNano()

	s.mu.RLock()
	cached := s.cache
	s.mu.RUnlock()
	if cached != nil && cached.modTime == mod {
		return cached.artifact, nil
	}

	content, err := os.ReadFile(latest)
	if err != nil {
		return Artifact{}, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return Artifact{}, err
	}
	s.mu.Lock()
	s.cache = &cachedArtifact{artifact: artifact, modTime: mod}
	s.mu.Unlock()

	logger.Log.WithFields(map[string]interface{}{
		"model":   s.name,
		"version": artifact.Model.Version,
	}).Info("Loaded model artifact")

	return artifact, nil
}

// defaultArtifact is a conservative logistic baseline over the standard
// sepsis panel. Coefficients are scaled so typical healthy vitals land well
// below the risk threshold.
func defaultArtifact() Artifact {
	var a Artifact
	a.Model.Type = "classifier"
	a.Model.Algorithm = "logistic_regression"
	a.Model.Version = "baseline-0.1"
	a.Model.FeatureNames = []string{
		"heart_rate", "respiratory_rate", "temperature",
		"systolic_bp", "diastolic_bp", "oxygen_saturation",
		"blood_glucose", "wbc_count", "platelet_count",
		"lactate", "creatinine", "bilirubin",
	}
	a.Model.Weights.Bias = -8.0
	a.Model.Weights.Coefficients = []float64{
		0.025,  // heart_rate
		0.09,   // respiratory_rate
		0.06,   // temperature
		-0.012, // systolic_bp
		-0.006, // diastolic_bp
		-0.02,  // oxygen_saturation
		0.002,  // blood_glucose
		0.05,   // wbc_count
		-0.003, // platelet_count
		0.45,   // lactate
		0.3,    // creatinine
		0.2,    // bilirubin
	}
	return a
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
