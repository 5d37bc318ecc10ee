package strategy

// Config groups evaluator parameters and the initially enabled set.
// An empty Enabled list enables every strategy.
type Config struct {
	Enabled       []string            `yaml:"enabled"`
	Scalping      ScalpingConfig      `yaml:"scalping"`
	AdaptiveTrend AdaptiveTrendConfig `yaml:"adaptive_trend"`
	Conservative  MeanReversionConfig `yaml:"mean_reversion_conservative"`
	Aggressive    MeanReversionConfig `yaml:"mean_reversion_aggressive"`
}

// DefaultConfig returns the standard parameters with every strategy enabled.
func DefaultConfig() Config {
	return Config{
		Scalping:      DefaultScalpingConfig(),
		AdaptiveTrend: DefaultAdaptiveTrendConfig(),
		Conservative:  ConservativeMeanReversion(),
		Aggressive:    AggressiveMeanReversion(),
	}
}

// Names lists every built-in strategy.
func Names() []string {
	return []string{
		NameScalping,
		NameMeanReversionConservative,
		NameMeanReversionAggressive,
		NameAdaptiveTrend,
	}
}
