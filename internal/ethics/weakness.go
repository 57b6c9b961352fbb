// Package ethics provides ethical-adjustment collaborators: the identity
// transform, the profile-driven weakness engine, and a gRPC client and server
// for running either one out of process.
package ethics

import (
	"context"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"gopkg.in/yaml.v3"
)

// Identity returns its input unchanged.
var Identity adjust.EthicalAdjuster = adjust.AdjusterFunc(func(_ context.Context, m attribute.Mapping) (attribute.Mapping, error) {
	return m, nil
})

// #region profile
// Profile describes how strongly each attribute erodes under internal
// weakness. Weaknesses and Sensitivity lie in [0, 1].
type Profile struct {
	Sensitivity float64            `yaml:"sensitivity" json:"sensitivity"`
	Weaknesses  map[string]float64 `yaml:"weaknesses" json:"weaknesses"`
}

// DefaultProfile applies weaknesses at full strength and lists none.
func DefaultProfile() Profile {
	return Profile{Sensitivity: 1}
}

// LoadProfile reads a YAML or JSON profile file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read weakness profile: %w", err)
	}
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse weakness profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("weakness profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks value ranges.
func (p Profile) Validate() error {
	if p.Sensitivity < 0 || p.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be between 0 and 1, got %v", p.Sensitivity)
	}
	for k, w := range p.Weaknesses {
		if w < 0 || w > 1 {
			return fmt.Errorf("weakness for %q must be between 0 and 1, got %v", k, w)
		}
	}
	return nil
}
// #endregion profile

// #region weakness-engine
// WeaknessEngine scales each attribute by (1 - sensitivity*weakness). Keys
// without a weakness pass through untouched, so the key set is preserved.
type WeaknessEngine struct {
	profile Profile
}

// NewWeaknessEngine validates p and returns an engine using it.
func NewWeaknessEngine(p Profile) (*WeaknessEngine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &WeaknessEngine{profile: p}, nil
}

// Profile returns the profile in use.
func (w *WeaknessEngine) Profile() Profile {
	return w.profile
}

// Apply implements adjust.EthicalAdjuster.
func (w *WeaknessEngine) Apply(ctx context.Context, m attribute.Mapping) (attribute.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(attribute.Mapping, len(m))
	for k, v := range m {
		out[k] = v * (1 - w.profile.Sensitivity*w.profile.Weaknesses[k])
	}
	return out, nil
}
// #endregion weakness-engine
