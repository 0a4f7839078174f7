package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirName is the name of the global and per-repo config directory.
const DirName = ".pronounguard"

// Config holds application configuration.
type Config struct {
	// Sources are pronoun directory source names in lookup order.
	// Known: "static", "local", "pronoundb", "custom".
	Sources []string `json:"sources,omitempty"`

	// CustomEndpoint is the URL template for the "custom" source. The {id}
	// placeholder is replaced with the person ID verbatim.
	CustomEndpoint string `json:"custom_endpoint,omitempty"`

	// SourceTimeoutMs bounds each source attempt.
	SourceTimeoutMs int `json:"source_timeout_ms,omitempty"`

	// CacheTTLSeconds is how long a resolved label stays fresh.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty"`

	// CorrectFloor and CheckFloor are the confidence gates for auto-correct
	// and blocking mode.
	CorrectFloor int `json:"correct_floor,omitempty"`
	CheckFloor   int `json:"check_floor,omitempty"`

	// WindowPolicy is "proximity" (100 before, 300 after a marker) or
	// "correlation" (200 either side).
	WindowPolicy string `json:"window_policy,omitempty"`

	// Aggregation is "max", "mean" or "blend".
	Aggregation string `json:"aggregation,omitempty"`

	// KeepIgnorable scans code blocks, inline code and quotes too.
	KeepIgnorable bool `json:"keep_ignorable,omitempty"`

	// MaxPerWindow is the number of corrections allowed per
	// (context, person) inside WindowMinutes.
	MaxPerWindow  int `json:"max_per_window,omitempty"`
	WindowMinutes int `json:"window_minutes,omitempty"`
	SweepMinutes  int `json:"sweep_minutes,omitempty"`

	// Fingerprint also suppresses an identical message inside the window.
	Fingerprint bool `json:"fingerprint,omitempty"`

	// PronounSetsFile is a YAML file of extra pronoun sets.
	PronounSetsFile string `json:"pronoun_sets_file,omitempty"`

	// Overrides maps person IDs to labels served by the "static" source.
	Overrides map[string]string `json:"overrides,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level,omitempty"`

	// AllowedPaths are extra directories that directory export and import
	// may use besides ~/.pronounguard/exports. Relative entries are ignored.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lifts the directory restriction on export and import
	// paths. Symlinks are still rejected.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits open connections to the local directory database.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sources:         []string{"static", "local", "pronoundb"},
		SourceTimeoutMs: 5000,
		CacheTTLSeconds: 300,
		CorrectFloor:    70,
		CheckFloor:      80,
		WindowPolicy:    "proximity",
		Aggregation:     "max",
		MaxPerWindow:    2,
		WindowMinutes:   30,
		SweepMinutes:    30,
		LogLevel:        "info",
	}
}

// SourceTimeout returns SourceTimeoutMs as a duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMs) * time.Millisecond
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Window returns WindowMinutes as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// SweepInterval returns SweepMinutes as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepMinutes) * time.Minute
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.pronounguard.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.pronounguard) and repo
// (.pronounguard) directories. Repo config is found by walking upward from
// startDir. Repo config takes precedence for scalar values; arrays are merged
// (deduplicated) except Sources, whose order is replaced wholesale.
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .pronounguard/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns a zero-valued config (not defaults) if the file is missing.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars and map keys; arrays are merged
// and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.CustomEndpoint = pickString(overlay.CustomEndpoint, base.CustomEndpoint)
	result.SourceTimeoutMs = pickInt(overlay.SourceTimeoutMs, base.SourceTimeoutMs)
	result.CacheTTLSeconds = pickInt(overlay.CacheTTLSeconds, base.CacheTTLSeconds)
	result.CorrectFloor = pickInt(overlay.CorrectFloor, base.CorrectFloor)
	result.CheckFloor = pickInt(overlay.CheckFloor, base.CheckFloor)
	result.WindowPolicy = pickString(overlay.WindowPolicy, base.WindowPolicy)
	result.Aggregation = pickString(overlay.Aggregation, base.Aggregation)
	result.MaxPerWindow = pickInt(overlay.MaxPerWindow, base.MaxPerWindow)
	result.WindowMinutes = pickInt(overlay.WindowMinutes, base.WindowMinutes)
	result.SweepMinutes = pickInt(overlay.SweepMinutes, base.SweepMinutes)
	result.PronounSetsFile = pickString(overlay.PronounSetsFile, base.PronounSetsFile)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)

	// Booleans: overlay wins if true, else base
	result.KeepIgnorable = base.KeepIgnorable || overlay.KeepIgnorable
	result.Fingerprint = base.Fingerprint || overlay.Fingerprint
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Source order is meaningful, so a non-empty overlay replaces it.
	result.Sources = mergeStringSlice(base.Sources, nil)
	if len(overlay.Sources) > 0 {
		result.Sources = mergeStringSlice(overlay.Sources, nil)
	}

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)

	// Maps: overlay keys win
	if len(base.Overrides)+len(overlay.Overrides) > 0 {
		result.Overrides = make(map[string]string, len(base.Overrides)+len(overlay.Overrides))
		for k, v := range base.Overrides {
			result.Overrides[k] = v
		}
		for k, v := range overlay.Overrides {
			result.Overrides[k] = v
		}
	}

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
