package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures data discovery, splitting, model shape, training policy and outputs.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Split   SplitConfig   `yaml:"split"`
	Model   ModelConfig   `yaml:"model"`
	Train   TrainConfig   `yaml:"train"`
	Export  ExportConfig  `yaml:"export"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Server  ServerConfig  `yaml:"server"`
}

type DataConfig struct {
	// Root directory holding one subdirectory per recording session
	Dir        string  `yaml:"dir"`
	WindowSec  float64 `yaml:"windowSec"`
	SampleRate int     `yaml:"sampleRate"` // Hz
	// Upper bound on windows taken from a single session
	MaxWindowsPerSession int `yaml:"maxWindowsPerSession"`
	// Heart rate broadcast when a session has no usable heart-rate file
	HeartRateFallback float64 `yaml:"heartRateFallback"`
	// Heart-rate files at or below this size are treated as empty
	HeartRateMinBytes int64  `yaml:"heartRateMinBytes"`
	AccelFile         string `yaml:"accelFile"`
	HeartRateFile     string `yaml:"heartRateFile"`
}

// WindowLen is the number of timesteps per window, truncated to a whole step.
func (d DataConfig) WindowLen() int { return int(d.WindowSec * float64(d.SampleRate)) }

type SplitConfig struct {
	ValFraction float64 `yaml:"valFraction"`
	Seed        int64   `yaml:"seed"`
}

type ModelConfig struct {
	Hidden int   `yaml:"hidden"`
	Seed   int64 `yaml:"seed"` // weight initialisation
}

type TrainConfig struct {
	LearningRate    float64 `yaml:"learningRate"`
	WeightDecay     float64 `yaml:"weightDecay"`
	Epochs          int     `yaml:"epochs"`
	Patience        int     `yaml:"patience"`
	PlateauPatience int     `yaml:"plateauPatience"`
	PlateauFactor   float64 `yaml:"plateauFactor"`
	ClipNorm        float64 `yaml:"clipNorm"`
	LogEvery        int     `yaml:"logEvery"`
}

type ExportConfig struct {
	Dir      string `yaml:"dir"`
	FullName string `yaml:"fullName"`
	HalfName string `yaml:"halfName"`
}

// FullPath is where the full-precision checkpoint is written.
func (e ExportConfig) FullPath() string { return filepath.Join(e.Dir, e.FullName) }

// HalfPath is where the half-precision checkpoint is written.
func (e ExportConfig) HalfPath() string { return filepath.Join(e.Dir, e.HalfName) }

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	// If empty, read from env METRICS_ADDR
	Addr string `yaml:"addr"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Data: DataConfig{
			Dir:                  "TrainingDataEAI",
			WindowSec:            5,
			SampleRate:           100,
			MaxWindowsPerSession: 4,
			HeartRateFallback:    100.0,
			HeartRateMinBytes:    50,
			AccelFile:            "WatchAccelerometerUncalibrated.csv",
			HeartRateFile:        "HeartRate.csv",
		},
		Split: SplitConfig{ValFraction: 0.2, Seed: 42},
		Model: ModelConfig{Hidden: 64, Seed: 42},
		Train: TrainConfig{
			LearningRate:    0.001,
			WeightDecay:     1e-4,
			Epochs:          1000,
			Patience:        150,
			PlateauPatience: 10,
			PlateauFactor:   0.5,
			ClipNorm:        1.0,
			LogEvery:        10,
		},
		Export:  ExportConfig{Dir: ".", FullName: "workout_model.ckpt", HalfName: "workout_model_fp16.ckpt"},
		Storage: StorageConfig{DBPath: "./workoutnet.db"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// ResolveEnv fills in config fields from environment variables.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("WORKOUTNET_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("WORKOUTNET_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Data.Dir == "":
		return errors.New("data.dir is empty")
	case c.Data.WindowSec <= 0:
		return fmt.Errorf("data.windowSec must be positive, got %g", c.Data.WindowSec)
	case c.Data.SampleRate <= 0:
		return fmt.Errorf("data.sampleRate must be positive, got %d", c.Data.SampleRate)
	case c.Data.WindowLen() <= 0:
		return fmt.Errorf("data.windowSec*data.sampleRate must be positive, got %d", c.Data.WindowLen())
	case c.Data.MaxWindowsPerSession <= 0:
		return fmt.Errorf("data.maxWindowsPerSession must be positive, got %d", c.Data.MaxWindowsPerSession)
	case c.Data.HeartRateMinBytes < 0:
		return fmt.Errorf("data.heartRateMinBytes must not be negative, got %d", c.Data.HeartRateMinBytes)
	case c.Split.ValFraction <= 0 || c.Split.ValFraction >= 1:
		return fmt.Errorf("split.valFraction must be in (0,1), got %g", c.Split.ValFraction)
	case c.Model.Hidden <= 0:
		return fmt.Errorf("model.hidden must be positive, got %d", c.Model.Hidden)
	case c.Train.Epochs <= 0:
		return fmt.Errorf("train.epochs must be positive, got %d", c.Train.Epochs)
	case c.Train.LearningRate <= 0:
		return fmt.Errorf("train.learningRate must be positive, got %g", c.Train.LearningRate)
	case c.Train.WeightDecay < 0:
		return fmt.Errorf("train.weightDecay must not be negative, got %g", c.Train.WeightDecay)
	case c.Train.Patience <= 0:
		return fmt.Errorf("train.patience must be positive, got %d", c.Train.Patience)
	case c.Train.PlateauPatience < 0:
		return fmt.Errorf("train.plateauPatience must not be negative, got %d", c.Train.PlateauPatience)
	case c.Train.PlateauFactor <= 0 || c.Train.PlateauFactor >= 1:
		return fmt.Errorf("train.plateauFactor must be in (0,1), got %g", c.Train.PlateauFactor)
	case c.Train.ClipNorm <= 0:
		return fmt.Errorf("train.clipNorm must be positive, got %g", c.Train.ClipNorm)
	}
	return nil
}

// Load reads YAML config from path. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.ResolveEnv()
		return cfg, nil
	}
	return cfg, err
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
