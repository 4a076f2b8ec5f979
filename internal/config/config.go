package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory when --config is not given.
const FileName = "ligscreen.yml"

// Config models ligscreen.yml. A loaded Config is treated as immutable: components
// receive it by value and never write back.
type Config struct {
	Target    string `yaml:"target" toml:"target"`
	Catalog   string `yaml:"catalog" toml:"catalog"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
	Tool      struct {
		Python            string   `yaml:"python" toml:"python"`
		RelaxPython       string   `yaml:"relax_python" toml:"relax_python"`
		Script            string   `yaml:"script" toml:"script"`
		Device            string   `yaml:"device" toml:"device"`
		SamplesPerComplex int      `yaml:"samples_per_complex" toml:"samples_per_complex"`
		InferenceSteps    int      `yaml:"inference_steps" toml:"inference_steps"`
		ExtraArgs         []string `yaml:"extra_args" toml:"extra_args"`
	} `yaml:"tool" toml:"tool"`
	Files struct {
		Input    string `yaml:"input" toml:"input"`
		Result   string `yaml:"result" toml:"result"`
		Combined string `yaml:"combined" toml:"combined"`
		Top      string `yaml:"top" toml:"top"`
		Events   string `yaml:"events" toml:"events"`
	} `yaml:"files" toml:"files"`
	Scoring Scoring `yaml:"scoring" toml:"scoring"`
}

type Scoring struct {
	AffinityWeight float64 `yaml:"affinity_weight" toml:"affinity_weight"`
	LDDTWeight     float64 `yaml:"lddt_weight" toml:"lddt_weight"`
	DegenerateFill float64 `yaml:"degenerate_fill" toml:"degenerate_fill"`
	TopK           int     `yaml:"top_k" toml:"top_k"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("config.target is required")
	}
	if strings.TrimSpace(c.Catalog) == "" {
		return fmt.Errorf("config.catalog is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("config.output_dir is required")
	}
	if strings.TrimSpace(c.Tool.Script) == "" {
		return fmt.Errorf("config.tool.script is required")
	}
	if strings.TrimSpace(c.Tool.Python) == "" {
		return fmt.Errorf("config.tool.python is required")
	}
	if strings.TrimSpace(c.Tool.Device) == "" {
		return fmt.Errorf("config.tool.device is required")
	}
	if c.Tool.SamplesPerComplex <= 0 {
		return fmt.Errorf("config.tool.samples_per_complex must be positive")
	}
	if c.Tool.InferenceSteps <= 0 {
		return fmt.Errorf("config.tool.inference_steps must be positive")
	}
	for _, f := range []struct{ key, name string }{
		{"input", c.Files.Input},
		{"result", c.Files.Result},
		{"combined", c.Files.Combined},
		{"top", c.Files.Top},
		{"events", c.Files.Events},
	} {
		if f.name == "" {
			return fmt.Errorf("config.files.%s is required", f.key)
		}
		if strings.ContainsAny(f.name, `/\`) {
			return fmt.Errorf("config.files.%s must be a bare file name, got %q", f.key, f.name)
		}
	}
	if strings.Count(c.Files.Top, "%d") != 1 {
		return fmt.Errorf("config.files.top must contain exactly one %%d placeholder for K")
	}
	return c.Scoring.Validate()
}

// Validate checks weights and the degenerate fill keep combined scores inside [0,1].
func (s Scoring) Validate() error {
	if s.AffinityWeight < 0 || s.LDDTWeight < 0 {
		return fmt.Errorf("config.scoring weights must not be negative")
	}
	if math.Abs(s.AffinityWeight+s.LDDTWeight-1) > 1e-9 {
		return fmt.Errorf("config.scoring weights must sum to 1 (got %g)", s.AffinityWeight+s.LDDTWeight)
	}
	if s.DegenerateFill < 0 || s.DegenerateFill > 1 {
		return fmt.Errorf("config.scoring.degenerate_fill must be within [0,1]")
	}
	if s.TopK < 0 {
		return fmt.Errorf("config.scoring.top_k must not be negative")
	}
	return nil
}

// LigandDir returns the per-ligand output directory.
func (c Config) LigandDir(name string) string {
	return filepath.Join(c.OutputDir, name)
}

// CombinedPath returns where the combined results table is written.
func (c Config) CombinedPath() string {
	return filepath.Join(c.OutputDir, c.Files.Combined)
}

// TopPath returns where the top-K table is written.
func (c Config) TopPath(k int) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf(c.Files.Top, k))
}

// IsArtifactName reports whether name collides with a file the run writes into
// OutputDir, including any top-K table and the temp files of atomic writes.
func (c Config) IsArtifactName(name string) bool {
	name = strings.TrimSuffix(name, ".tmp")
	if name == c.Files.Combined || name == c.Files.Events {
		return true
	}
	prefix, suffix, ok := strings.Cut(c.Files.Top, "%d")
	if !ok {
		return name == c.Files.Top
	}
	if len(name) <= len(prefix)+len(suffix) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return false
	}
	for _, r := range name[len(prefix) : len(name)-len(suffix)] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EventsPath returns the run journal path.
func (c Config) EventsPath() string {
	return filepath.Join(c.OutputDir, c.Files.Events)
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return cfg
}

// Load reads and validates config from path.
func Load(path string) (Config, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional returns the defaults if the config file does not exist in dir.
// The result is not validated; callers apply overrides first.
func LoadOptional(dir string) (Config, error) {
	path := Path(dir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return FromFile(path)
}

// FromYAML decodes raw YAML over the defaults.
func FromYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config yaml: %w", err)
	}
	return cfg, nil
}

// FromTOML decodes raw TOML over the defaults.
func FromTOML(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config toml: %w", err)
	}
	return cfg, nil
}

// FromFile reads config from path, choosing the decoder by extension.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config %s not found; create one with ligscreen config init", path)
		}
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FromTOML(data)
	default:
		return FromYAML(data)
	}
}

const defaultTemplate = `# Target structure and ligand catalog.
target: ""
catalog: ""
output_dir: "screening"

tool:
  python: python
  relax_python: python
  script: run_single_protein_inference.py
  device: "0"
  samples_per_complex: 3
  inference_steps: 20
  extra_args: []

files:
  input: ligand.csv
  result: complete_affinity_prediction.csv
  combined: combined_affinity_predictions.csv
  top: top_%d_ligands.csv
  events: screening_events.jsonl

scoring:
  affinity_weight: 0.5
  lddt_weight: 0.5
  degenerate_fill: 0.5
  top_k: 0
`
