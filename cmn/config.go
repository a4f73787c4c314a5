package cmn

import "time"

// Config is the single assembled configuration struct for a crawler
// process. Parsing it from flags/env/file is out of scope;
// this type only defines the shape and the defaults a caller gets when it
// does not override a field: one top-level struct of nested sections,
// assembled once at process start.
type Config struct {
	Fetch       FetchConfig
	Storage     StorageConfig
	Queue       QueueConfig
	Planner     PlannerConfig
	Places      PlacesConfig
	UserAgent   string
	GazetteerPath string
}

type FetchConfig struct {
	MaxGlobalConcurrency int
	MaxHostConcurrency   int
	DefaultHostDelayMs   int
	RetryBudget          int
	BackoffBaseMs        int
	BackoffMaxMs         int
	ConnectTimeout       time.Duration
	TotalTimeout         time.Duration
	MaxRedirects         int
	RobotsTTLSeconds     int
}

type StorageConfig struct {
	InlineThresholdBytes int64
	BucketMaxEntries     int64
	BucketMaxBytes       int64
	CompressionType      string
}

type QueueConfig struct {
	WindowSize int
}

type PlannerConfig struct {
	PatternLearningThreshold int
	StepBudget               int
	StepBudgetTimeout        time.Duration
}

type PlacesConfig struct {
	ContextWindow     int
	TightContextWindow int
	SecondaryGap      float64
	MinConfidence     float64
	CoordProximityDeg float64
}

// DefaultConfig returns the configuration defaults enumerated
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			MaxGlobalConcurrency: 16,
			MaxHostConcurrency:   2,
			DefaultHostDelayMs:   500,
			RetryBudget:          5,
			BackoffBaseMs:        1000,
			BackoffMaxMs:         16000,
			ConnectTimeout:       10 * time.Second,
			TotalTimeout:         30 * time.Second,
			MaxRedirects:         5,
			RobotsTTLSeconds:     86400,
		},
		Storage: StorageConfig{
			InlineThresholdBytes: 4096,
			BucketMaxEntries:     50000,
			BucketMaxBytes:       256 << 20,
			CompressionType:      "lz4",
		},
		Queue: QueueConfig{
			WindowSize: 10000,
		},
		Planner: PlannerConfig{
			PatternLearningThreshold: 25,
			StepBudget:               10000,
			StepBudgetTimeout:        2 * time.Minute,
		},
		Places: PlacesConfig{
			ContextWindow:      50,
			TightContextWindow: 25,
			SecondaryGap:       0.5,
			MinConfidence:      0.1,
			CoordProximityDeg:  0.05,
		},
		UserAgent: "newsgrid-crawler/1.0 (+https://example.invalid/bot)",
	}
}
