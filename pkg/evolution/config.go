package evolution

// Config holds the force coefficients and correction/coupling settings of a
// run. It is immutable once a run starts.
type Config struct {
	Delta     float64 `yaml:"delta" json:"delta"`
	Epsilon   float64 `yaml:"epsilon" json:"epsilon"`
	Threshold float64 `yaml:"threshold" json:"threshold"`

	MessageAttractorForceStrength float64 `yaml:"message_attractor_force_strength" json:"message_attractor_force_strength"`
	InterBasisResonanceStrength   float64 `yaml:"inter_basis_resonance_strength" json:"inter_basis_resonance_strength"`
	AmplitudeCouplingStrength     float64 `yaml:"amplitude_coupling_strength" json:"amplitude_coupling_strength"`
	IntraBasisCoherenceStrength   float64 `yaml:"intra_basis_coherence_strength" json:"intra_basis_coherence_strength"`

	EnablePhaseCorrection bool    `yaml:"enable_phase_correction" json:"enable_phase_correction"`
	CorrectionInterval    int     `yaml:"correction_interval" json:"correction_interval"`
	CorrectionStrength    float64 `yaml:"correction_strength" json:"correction_strength"`

	UseAmplitudeModulation bool    `yaml:"use_amplitude_modulation" json:"use_amplitude_modulation"`
	AmplitudeEpsilon       float64 `yaml:"amplitude_epsilon" json:"amplitude_epsilon"`

	MessageResonanceStrength    float64 `yaml:"message_resonance_strength" json:"message_resonance_strength"`
	QuantumFieldStrength        float64 `yaml:"quantum_field_strength" json:"quantum_field_strength"`
	SenderStabilizationStrength float64 `yaml:"sender_stabilization_strength" json:"sender_stabilization_strength"`
	NonlocalCouplingStrength    float64 `yaml:"nonlocal_coupling_strength" json:"nonlocal_coupling_strength"`
	QuantumCorrelationStrength  float64 `yaml:"quantum_correlation_strength" json:"quantum_correlation_strength"`

	AdaptiveThreshold  bool `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	MaxPulsarsPerPrime int  `yaml:"max_pulsars_per_prime" json:"max_pulsars_per_prime"`
	Cycles             int  `yaml:"cycles" json:"cycles"`
}

// DefaultConfig returns the baseline coefficients. Cycles defaults to 0,
// the direct-transfer setting in which a frame is decoded right after it is
// encoded.
func DefaultConfig() Config {
	return Config{
		Delta:     0.01,
		Epsilon:   0.3,
		Threshold: 0.15,

		MessageAttractorForceStrength: 500,
		InterBasisResonanceStrength:   0.05,
		AmplitudeCouplingStrength:     0.1,
		IntraBasisCoherenceStrength:   0.5,

		EnablePhaseCorrection: true,
		CorrectionInterval:    5,
		CorrectionStrength:    0.5,

		UseAmplitudeModulation: false,
		AmplitudeEpsilon:       0.05,

		MessageResonanceStrength:    0.5,
		QuantumFieldStrength:        0.2,
		SenderStabilizationStrength: 0.1,
		NonlocalCouplingStrength:    0.3,
		QuantumCorrelationStrength:  0.1,

		AdaptiveThreshold:  false,
		MaxPulsarsPerPrime: 3,
		Cycles:             0,
	}
}

// EffectiveThreshold is the decode threshold for this config. With
// AdaptiveThreshold on it is half the phase epsilon, never above Threshold.
func (c Config) EffectiveThreshold() float64 {
	if !c.AdaptiveThreshold || c.Epsilon <= 0 {
		return c.Threshold
	}
	t := c.Epsilon / 2
	if c.Threshold > 0 && t > c.Threshold {
		t = c.Threshold
	}
	return t
}

// CorrectionDue reports whether periodic phase correction runs after the
// given 1-based cycle.
func (c Config) CorrectionDue(cycle int) bool {
	return c.EnablePhaseCorrection && c.CorrectionInterval > 0 && cycle > 0 && cycle%c.CorrectionInterval == 0
}
