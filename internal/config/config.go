package config

import (
	"os"
	"strconv"
)

type Config struct {
	Detector    DetectorConfig
	Storage     StorageConfig
	Recognition RecognitionConfig
	Augment     AugmentConfig
}

type DetectorConfig struct {
	URL string // base URL of the face detection service (defaults to http://localhost:8000)
	Dim int    // embedding dimension reported by the detector (defaults to 512)
}

type StorageConfig struct {
	DataDir      string // directory for snapshots and the attendance ledger (defaults to data/processed)
	AugmentedDir string // optional directory for saving augmented frames; empty disables saving
}

type RecognitionConfig struct {
	Threshold float64 // base similarity threshold for accepting a match (defaults to 0.4)
}

type AugmentConfig struct {
	Enabled bool   // whether enrollment uses augmentation by default
	Preset  string // default augmentation preset name (defaults to balanced)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable, falling back to a default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Storage: StorageConfig{
			DataDir:      envString("DATA_DIR", "data/processed"),
			AugmentedDir: os.Getenv("AUGMENTED_DIR"),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("RECOGNITION_THRESHOLD", 0.4),
		},
		Augment: AugmentConfig{
			Enabled: os.Getenv("AUGMENTATION_DISABLED") == "",
			Preset:  envString("AUGMENTATION_PRESET", "balanced"),
		},
	}
}
