package agents

import "math"

// PanicConfig tunes the panic rule. Rates are per second.
type PanicConfig struct {
	IncreaseRate      float64 `yaml:"increase_rate"`
	DecreaseRate      float64 `yaml:"decrease_rate"`
	SmokeRate         float64 `yaml:"smoke_rate"`
	Threshold         float64 `yaml:"threshold"`
	BeaconUnseenAfter float64 `yaml:"beacon_unseen_after"` // seconds without a beacon before panic rises
	NearbyRadius      float64 `yaml:"nearby_radius"`
	CloseFraction     float64 `yaml:"close_fraction"` // remaining path below this share of vision calms
}

// DefaultPanicConfig returns the stock panic tuning.
func DefaultPanicConfig() PanicConfig {
	return PanicConfig{
		IncreaseRate:      0.05,
		DecreaseRate:      0.1,
		SmokeRate:         0.1,
		Threshold:         0.7,
		BeaconUnseenAfter: 5,
		NearbyRadius:      5,
		CloseFraction:     0.5,
	}
}

// PanicInputs is what the panic rule observes about an agent in one tick.
type PanicInputs struct {
	SinceBeaconSeen float64
	HoldingBeacon   bool
	AnyoneNearby    bool
	HasPath         bool
	Remaining       float64
	Vision          float64
	InSmoke         bool
}

// PanicState is the agent's panic level in [0, 1].
type PanicState struct {
	Level float64 `json:"level"`
}

// Update applies one tick of the panic rule and returns the new level.
// Each increase term adds IncreaseRate*dt: a beacon unseen for too long,
// nobody nearby, no path. Smoke adds SmokeRate*dt. Each decrease term
// subtracts DecreaseRate*dt: a recently seen beacon is held, the path end
// is close.
func (p *PanicState) Update(cfg PanicConfig, in PanicInputs, dt float64) float64 {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return p.Level
	}
	delta := 0.0
	if in.SinceBeaconSeen > cfg.BeaconUnseenAfter {
		delta += cfg.IncreaseRate
	}
	if !in.AnyoneNearby {
		delta += cfg.IncreaseRate
	}
	if !in.HasPath {
		delta += cfg.IncreaseRate
	}
	if in.InSmoke {
		delta += cfg.SmokeRate
	}
	if in.HoldingBeacon && in.SinceBeaconSeen < cfg.BeaconUnseenAfter {
		delta -= cfg.DecreaseRate
	}
	if in.HasPath && in.Remaining < in.Vision*cfg.CloseFraction {
		delta -= cfg.DecreaseRate
	}
	p.Level = clamp01(p.Level + delta*dt)
	return p.Level
}

// Panicking reports whether the level is above the threshold.
func (p PanicState) Panicking(cfg PanicConfig) bool {
	return p.Level > cfg.Threshold
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
