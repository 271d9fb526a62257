// Package treemodel evaluates an exported gradient-boosted ensemble of
// oblivious (symmetric) decision trees.
//
// Artifact layout (YAML, or JSON since YAML is a superset):
//
//	features:
//	  - name: Road_traffic_density
//	    categories: {Low: 0, Medium: 1, High: 2, Jam: 3}
//	    default: 1
//	  - name: Distance(m)
//	trees:
//	  - splits: [{feature: 2, border: 5000}]
//	    leaf_values: [-2.5, 4.0]
//	scale: 1
//	bias: 26.3
//
// A tree of depth d has 2^d leaves. Bit i of the leaf index is set when the
// split-i feature value is strictly greater than its border. The prediction is
// bias + scale * sum(leaf values).
package treemodel

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/estimator"
)

const maxDepth = 16

type FeatureSpec struct {
	Name string `yaml:"name" validate:"required"`
	// Non-empty for categorical columns.
	Categories map[string]float64 `yaml:"categories"`
	// Encoding for labels missing from Categories; unknown labels are rejected when nil.
	Default *float64 `yaml:"default"`
}

func (f FeatureSpec) categorical() bool { return len(f.Categories) > 0 }

type Split struct {
	Feature int     `yaml:"feature" validate:"gte=0"`
	Border  float64 `yaml:"border"`
}

type Tree struct {
	Splits     []Split   `yaml:"splits" validate:"max=16,dive"`
	LeafValues []float64 `yaml:"leaf_values" validate:"required,min=1"`
}

type Artifact struct {
	Features []FeatureSpec `yaml:"features" validate:"required,min=1,dive"`
	Trees    []Tree        `yaml:"trees" validate:"required,min=1,dive"`
	Scale    *float64      `yaml:"scale"`
	Bias     float64       `yaml:"bias"`
}

// Model is immutable after Parse and safe for concurrent use.
type Model struct {
	features []FeatureSpec
	trees    []Tree
	scale    float64
	bias     float64
}

func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrModelLoad, path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func Parse(data []byte) (*Model, error) {
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", model.ErrModelLoad, err)
	}
	if err := validator.New().Struct(a); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrModelLoad, err)
	}
	if err := a.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrModelLoad, err)
	}

	scale := 1.0
	if a.Scale != nil {
		scale = *a.Scale
	}
	return &Model{
		features: a.Features,
		trees:    a.Trees,
		scale:    scale,
		bias:     a.Bias,
	}, nil
}

func (a Artifact) check() error {
	seen := make(map[string]struct{}, len(a.Features))
	for _, f := range a.Features {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for i, t := range a.Trees {
		if len(t.Splits) > maxDepth {
			return fmt.Errorf("tree %d: depth %d exceeds %d", i, len(t.Splits), maxDepth)
		}
		if want := 1 << len(t.Splits); len(t.LeafValues) != want {
			return fmt.Errorf("tree %d: %d leaf values, want %d for depth %d", i, len(t.LeafValues), want, len(t.Splits))
		}
		for j, s := range t.Splits {
			if s.Feature >= len(a.Features) {
				return fmt.Errorf("tree %d split %d: feature index %d out of range", i, j, s.Feature)
			}
		}
	}
	return nil
}

// FeatureNames returns the column order the model expects.
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.features))
	for i, f := range m.features {
		out[i] = f.Name
	}
	return out
}

func (m *Model) Predict(x []estimator.Feature) (float64, error) {
	enc, err := m.encode(x)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, t := range m.trees {
		idx := 0
		for bit, s := range t.Splits {
			if enc[s.Feature] > s.Border {
				idx |= 1 << bit
			}
		}
		sum += t.LeafValues[idx]
	}
	out := m.bias + m.scale*sum
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: got %v", model.ErrInvalidPrediction, out)
	}
	// a duration is never negative; the ensemble can still sum below zero
	out = max(out, 0)
	return out, nil
}

func (m *Model) encode(x []estimator.Feature) ([]float64, error) {
	if len(x) != len(m.features) {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", model.ErrFeatureShape, len(x), len(m.features))
	}
	enc := make([]float64, len(x))
	for i, f := range x {
		spec := m.features[i]
		if f.Name != spec.Name {
			return nil, fmt.Errorf("%w: position %d is %q, model expects %q", model.ErrFeatureShape, i, f.Name, spec.Name)
		}
		switch {
		case f.Categorical && spec.categorical():
			v, ok := spec.Categories[strings.TrimSpace(f.Text)]
			if !ok {
				if spec.Default == nil {
					return nil, fmt.Errorf("%w: unknown %s value %q", model.ErrFeatureShape, f.Name, f.Text)
				}
				v = *spec.Default
			}
			enc[i] = v
		case !f.Categorical && !spec.categorical():
			enc[i] = f.Num
		default:
			return nil, fmt.Errorf("%w: %s categorical=%v, model disagrees", model.ErrFeatureShape, f.Name, f.Categorical)
		}
	}
	return enc, nil
}
