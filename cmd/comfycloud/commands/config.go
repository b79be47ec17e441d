package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the operator's persistent configuration.
type Config struct {
	// APIKey is the marketplace API key. The VAST_API_KEY environment
	// variable takes precedence.
	APIKey string `yaml:"api_key"`
	// FolderID is the content store folder holding the model library.
	FolderID string `yaml:"folder_id"`
	// GPU is the default GPU model to search for.
	GPU string `yaml:"gpu"`
	// MaxPrice is the default price cap in $/hr.
	MaxPrice float64 `yaml:"max_price"`
	// Image is the serving container image.
	Image string `yaml:"image"`
	// DiskGB is the instance disk allocation.
	DiskGB int `yaml:"disk_gb"`
	// ModelsPath is the local model library root.
	ModelsPath string `yaml:"models_path"`
	// MirrorPath is the mounted cloud mirror of the model library.
	MirrorPath string `yaml:"mirror_path"`
	// OutputDir receives generated images.
	OutputDir string `yaml:"output_dir"`
}

const configFileName = "comfycloud.yaml"

// defaultConfig holds the fallbacks applied after file and env merging.
var defaultConfig = Config{
	GPU:       "RTX_3090",
	MaxPrice:  0.5,
	Image:     "yanwk/comfyui-boot:latest",
	DiskGB:    20,
	OutputDir: "outputs",
}

// loadConfig reads the config file (working directory first, then the
// user's home) and applies environment overrides. A missing file is not an
// error; a malformed one is.
func loadConfig() (Config, error) {
	cfg := defaultConfig

	path := configFileName
	if _, err := os.Stat(path); err != nil {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, "."+configFileName)
		}
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("VAST_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("VAST_GPU"); v != "" {
		cfg.GPU = v
	}
	if v := os.Getenv("VAST_PRICE"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAST_PRICE %q: %w", v, err)
		}
		cfg.MaxPrice = price
	}
	if v := os.Getenv("GDRIVE_FOLDER_ID"); v != "" {
		cfg.FolderID = v
	}
	return cfg, nil
}
