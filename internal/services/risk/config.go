package risk

// Config holds sizing and eligibility limits. Percentages are in percent units (1 = 1%).
type Config struct {
	RiskPercent         float64 `yaml:"risk_percent" default:"1" validate:"gt=0,lte=100"`
	MinPosition         float64 `yaml:"min_position" default:"1000" validate:"gte=0"`
	MaxPositionPercent  float64 `yaml:"max_position_percent" default:"20" validate:"gt=0,lte=100"`
	StopDistancePercent float64 `yaml:"stop_distance_percent" default:"0.5" validate:"gte=0"`
	MinStopDistance     float64 `yaml:"min_stop_distance" default:"0.001" validate:"gte=0"`
	MinStopRatio        float64 `yaml:"min_stop_ratio" default:"0.001" validate:"gte=0"`
	MinRewardRisk       float64 `yaml:"min_reward_risk" default:"1.5" validate:"gt=0"`
	MinScore            int     `yaml:"min_score" default:"10" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		RiskPercent:         1,
		MinPosition:         1000,
		MaxPositionPercent:  20,
		StopDistancePercent: 0.5,
		MinStopDistance:     0.001,
		MinStopRatio:        0.001,
		MinRewardRisk:       1.5,
		MinScore:            10,
	}
}
