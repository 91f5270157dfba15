package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the directory layout read from the YAML settings file.
type Settings struct {
	BaseDir   string `yaml:"base_dir"`
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
	LogDir    string `yaml:"log_dir"`
	ModelDir  string `yaml:"model_dir"`
	ImagesDir string `yaml:"images_dir"`
}

// Paths are the resolved absolute directories of the pipeline.
type Paths struct {
	BasePath   string
	DataPath   string
	OutputPath string
	LogPath    string
	ModelPath  string
	ImagesPath string
}

// LoadSettings loads the settings file at path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}

	return s, nil
}

// Validate checks that every directory key is present.
func (s Settings) Validate() error {
	var errs []error

	for key, value := range map[string]string{
		"base_dir":   s.BaseDir,
		"data_dir":   s.DataDir,
		"output_dir": s.OutputDir,
		"log_dir":    s.LogDir,
		"model_dir":  s.ModelDir,
		"images_dir": s.ImagesDir,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("settings: %s is required", key))
		}
	}

	return errors.Join(errs...)
}

// Resolve turns the settings into absolute paths. Relative base_dir values
// are resolved against the working directory.
func (s Settings) Resolve() (Paths, error) {
	if err := s.Validate(); err != nil {
		return Paths{}, err
	}

	base, err := filepath.Abs(s.BaseDir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve base_dir: %w", err)
	}

	p := Paths{
		BasePath:   base,
		DataPath:   filepath.Join(base, s.DataDir),
		OutputPath: filepath.Join(base, s.OutputDir),
		LogPath:    filepath.Join(base, s.LogDir),
	}
	p.ModelPath = filepath.Join(p.OutputPath, s.ModelDir)
	p.ImagesPath = filepath.Join(p.DataPath, s.ImagesDir)

	return p, nil
}

// LoadPaths loads and resolves the settings file at path.
func LoadPaths(path string) (Paths, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return Paths{}, err
	}

	return s.Resolve()
}

// Display prints the resolved configuration.
func (p Paths) Display(w io.Writer) {
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "BASE_PATH:\t %s\n", p.BasePath)
	fmt.Fprintf(w, "DATA_PATH:\t %s\n", p.DataPath)
	fmt.Fprintf(w, "OUTPUT_PATH:\t %s\n", p.OutputPath)
	fmt.Fprintf(w, "LOG_PATH:\t %s\n", p.LogPath)
	fmt.Fprintf(w, "MODEL_PATH:\t %s\n", p.ModelPath)
	fmt.Fprintf(w, "IMAGES_PATH:\t %s\n", p.ImagesPath)
}
