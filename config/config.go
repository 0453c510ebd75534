package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Token     string  `toml:"token" yaml:"token"`
	Host      string  `toml:"host" yaml:"host"`
	Port      string  `toml:"port" yaml:"port"`
	GRPCPort  int     `toml:"grpc_port" yaml:"grpc_port"`
	Threshold float64 `toml:"threshold" yaml:"threshold"`
	Libonnx   string  `toml:"libonnx" yaml:"libonnx"`

	ModelDir        string            `toml:"model_dir" yaml:"model_dir"`
	ModelCandidates []string          `toml:"model_candidates" yaml:"model_candidates"`
	ModelURLs       map[string]string `toml:"model_urls" yaml:"model_urls"`
	LabelsFile      string            `toml:"labels_file" yaml:"labels_file"`

	// NormalizeSigned maps pixels to [-1,1] instead of [0,1]. It must match
	// how the deployed model was trained.
	NormalizeSigned bool   `toml:"normalize_signed" yaml:"normalize_signed"`
	Resample        string `toml:"resample" yaml:"resample"`
	IntraOpThreads  int    `toml:"intra_op_threads" yaml:"intra_op_threads"`
	MaxUploadMB     int64  `toml:"max_upload_mb" yaml:"max_upload_mb"`

	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogDev   bool   `toml:"log_dev" yaml:"log_dev"`
	Metrics  bool   `toml:"metrics" yaml:"metrics"`
}

// Default returns the built-in configuration that config files are layered over.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            "8000",
		ModelDir:        "models",
		ModelCandidates: []string{"model_quant.onnx", "model.onnx"},
		LabelsFile:      "labels.txt",
		Resample:        "linear",
		MaxUploadMB:     16,
		LogLevel:        "info",
		Metrics:         true,
	}
}

var (
	cfg      = Default()
	loadOnce sync.Once
)

// C returns the process configuration, reading config.toml (or config.yaml
// when there is no TOML file) from the working directory on first use.
func C() Config {
	loadOnce.Do(func() {
		for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
			if _, err := os.Stat(name); err != nil {
				continue
			}
			loaded, err := Load(name)
			if err != nil {
				panic(err)
			}
			cfg = loaded
			return
		}
	})
	return cfg
}

// Load parses the file at path over the defaults. The codec is chosen by
// file extension.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		return c, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return c, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

// ModelURL returns the download location configured for a model candidate.
func (c Config) ModelURL(candidate string) string {
	if c.ModelURLs == nil {
		return ""
	}
	return c.ModelURLs[candidate]
}
