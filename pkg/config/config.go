// Package config provides configuration loading and management for channelmerge.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"channelmerge/pkg/compose"
	"channelmerge/pkg/correction"
	"channelmerge/pkg/imageio"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Correction parameters
	Correction struct {
		// Sigma is the Gaussian standard deviation in pixels; 0 disables correction
		Sigma float64 `yaml:"sigma"`

		// Mode controls how the blur extends the image past its edges
		Mode string `yaml:"mode"`

		// Method is subtract or divide
		Method string `yaml:"method"`

		// Truncate is the kernel radius in standard deviations
		Truncate float64 `yaml:"truncate"`
	} `yaml:"correction"`

	// Input parameters
	Input struct {
		// Extension selects which files in the directory are channel images
		Extension string `yaml:"extension" validate:"required,startswith=."`

		// PlaceholderMarker is the extension of staged stand-in channels
		PlaceholderMarker string `yaml:"placeholderMarker" validate:"required,startswith=.,nefield=Extension"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir is where composites are written; relative paths resolve against the input directory
		Dir string `yaml:"dir" validate:"required"`

		Suffix     string `yaml:"suffix" validate:"required,nefield=GraySuffix"`
		GraySuffix string `yaml:"graySuffix" validate:"required"`
		Extension  string `yaml:"extension" validate:"required,startswith=."`

		// Compression is none or deflate
		Compression string `yaml:"compression" validate:"oneof=none deflate"`

		// Passthrough writes single-channel acquisitions as grayscale images
		Passthrough bool `yaml:"passthrough"`
	} `yaml:"output"`

	// Processing parameters
	Processing struct {
		// Workers bounds how many combinations are composed at once
		Workers int `yaml:"workers" validate:"gte=1"`
	} `yaml:"processing"`

	// Logging parameters
	Logging struct {
		// Format is console or json
		Format string `yaml:"format" validate:"oneof=console json"`

		// Verbose enables debug output
		Verbose bool `yaml:"verbose"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Correction.Sigma = 50
	cfg.Correction.Mode = string(correction.ModeNearest)
	cfg.Correction.Method = string(correction.MethodSubtract)
	cfg.Correction.Truncate = correction.DefaultTruncate

	cfg.Input.Extension = ".tif"
	cfg.Input.PlaceholderMarker = ".dummy"

	opts := compose.DefaultOptions()
	cfg.Output.Dir = "merged_corrected"
	cfg.Output.Suffix = opts.Suffix
	cfg.Output.GraySuffix = opts.GraySuffix
	cfg.Output.Extension = opts.Ext
	cfg.Output.Compression = imageio.CompressionNone
	cfg.Output.Passthrough = true

	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Logging.Format = "console"
	cfg.Logging.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// validate reports field errors under their YAML names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ","); name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks every setting that can be checked without touching the
// input directory. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	// Sigma, mode, method and truncate carry typed errors of their own
	if err := c.CorrectionParams().Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, e := range fieldErrs {
			errs = append(errs, fieldError(e))
		}
	}

	return errors.Join(errs...)
}

func fieldError(e validator.FieldError) error {
	field := e.Field()
	if _, path, ok := strings.Cut(e.Namespace(), "."); ok {
		field = path
	}

	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "startswith":
		return fmt.Errorf("%s must start with %q, got %q", field, e.Param(), e.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s, got %q", field, e.Param(), e.Value())
	case "nefield":
		return fmt.Errorf("%s must differ from %s, got %q", field, e.Param(), e.Value())
	case "gte":
		return fmt.Errorf("%s must be at least %s, got %v", field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}

// CorrectionParams converts the correction section into correction.Params.
func (c *Config) CorrectionParams() correction.Params {
	return correction.Params{
		Sigma:    c.Correction.Sigma,
		Mode:     correction.BoundaryMode(c.Correction.Mode),
		Method:   correction.Method(c.Correction.Method),
		Truncate: c.Correction.Truncate,
	}
}

// ComposeOptions converts the output section into compose.Options.
func (c *Config) ComposeOptions() compose.Options {
	return compose.Options{
		Suffix:     c.Output.Suffix,
		GraySuffix: c.Output.GraySuffix,
		Ext:        c.Output.Extension,
	}
}

// OutputPath resolves the output directory for inputDir.
func (c *Config) OutputPath(inputDir string) string {
	if filepath.IsAbs(c.Output.Dir) {
		return c.Output.Dir
	}
	return filepath.Join(inputDir, c.Output.Dir)
}
