package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.CorrectFloor != 70 || cfg.CheckFloor != 80 {
		t.Errorf("floors = %d/%d, want 70/80", cfg.CorrectFloor, cfg.CheckFloor)
	}
	if cfg.SourceTimeout() != 5*time.Second {
		t.Errorf("SourceTimeout() = %v, want 5s", cfg.SourceTimeout())
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("CacheTTL() = %v, want 5m", cfg.CacheTTL())
	}
	if cfg.SweepInterval() != 30*time.Minute {
		t.Errorf("SweepInterval() = %v, want 30m", cfg.SweepInterval())
	}
	if cfg.Window() != 30*time.Minute {
		t.Errorf("Window() = %v, want 30m", cfg.Window())
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"correct_floor": 60, "window_policy": "correlation", "overrides": {"42": "she/her"}}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CorrectFloor != 60 {
		t.Errorf("CorrectFloor = %d, want 60", cfg.CorrectFloor)
	}
	if cfg.CheckFloor != 80 {
		t.Errorf("CheckFloor = %d, want 80 (default)", cfg.CheckFloor)
	}
	if cfg.WindowPolicy != "correlation" {
		t.Errorf("WindowPolicy = %q, want correlation", cfg.WindowPolicy)
	}
	if cfg.Overrides["42"] != "she/her" {
		t.Errorf("Overrides = %v", cfg.Overrides)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{not json}`)

	if _, err := Load(dir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"disabled_tools": ["pronoun_clear", "pronoun_directory_set"]}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"pronoun_clear", "pronoun_directory_set"}
	if !reflect.DeepEqual(cfg.DisabledTools, want) {
		t.Errorf("DisabledTools = %v, want %v", cfg.DisabledTools, want)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"check_floor": 90, "disabled_tools": ["pronoun_clear"], "sources": ["pronoundb", "local"], "overrides": {"a": "he/him", "b": "she/her"}}`)
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"check_floor": 85, "disabled_tools": ["pronoun_stats"], "sources": ["local"], "overrides": {"b": "they/them"}}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.CheckFloor != 85 {
		t.Errorf("CheckFloor = %d, want 85 (repo override)", cfg.CheckFloor)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if !reflect.DeepEqual(cfg.Sources, []string{"local"}) {
		t.Errorf("Sources = %v, want [local] (repo replaces order)", cfg.Sources)
	}
	want := map[string]string{"a": "he/him", "b": "they/them"}
	if !reflect.DeepEqual(cfg.Overrides, want) {
		t.Errorf("Overrides = %v, want %v", cfg.Overrides, want)
	}
}

func TestLoadWithRepo_OnlyGlobal(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"max_per_window": 5}`)

	cfg, err := LoadWithRepo(globalDir, t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxPerWindow != 5 {
		t.Errorf("MaxPerWindow = %d, want 5", cfg.MaxPerWindow)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("LoadWithRepo() = %+v, want defaults", cfg)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, DirName), `{"aggregation": "blend"}`)
	subdir := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Aggregation != "blend" {
		t.Errorf("Aggregation = %q, want blend", cfg.Aggregation)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{CorrectFloor: 70, DBMaxOpenConns: 5, LogLevel: "info"}
	overlay := &Config{CorrectFloor: 75, LogLevel: "  "}

	result := Merge(base, overlay)

	if result.CorrectFloor != 75 {
		t.Errorf("CorrectFloor = %d, want 75 (overlay)", result.CorrectFloor)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info (blank overlay ignored)", result.LogLevel)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{KeepIgnorable: true}, &Config{Fingerprint: true})

	if !result.KeepIgnorable {
		t.Error("KeepIgnorable should be true (base OR overlay)")
	}
	if !result.Fingerprint {
		t.Error("Fingerprint should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"pronoun_clear", " pronoun_stats "}}
	overlay := &Config{DisabledTools: []string{"pronoun_stats", "pronoun_check"}}

	result := Merge(base, overlay)

	want := []string{"pronoun_clear", "pronoun_stats", "pronoun_check"}
	if !reflect.DeepEqual(result.DisabledTools, want) {
		t.Errorf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
}

func TestMerge_SourcesKeepBaseWhenOverlayEmpty(t *testing.T) {
	result := Merge(DefaultConfig(), &Config{})
	if !reflect.DeepEqual(result.Sources, DefaultConfig().Sources) {
		t.Errorf("Sources = %v, want defaults", result.Sources)
	}
	if result.Overrides != nil {
		t.Errorf("Overrides = %v, want nil", result.Overrides)
	}
}

func TestFindRepoConfig(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfig(t, filepath.Join(root, DirName), `{}`)
	deeper := filepath.Join(root, "subdir", "deeper")
	if err := os.MkdirAll(deeper, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(root); found != configPath {
		t.Errorf("FindRepoConfig(root) = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(deeper); found != configPath {
		t.Errorf("FindRepoConfig(deeper) = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestMerge_PathSettings(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/data/exports", "/tmp"}}
	overlay := &Config{AllowedPaths: []string{"/tmp", " /srv/backups "}, AllowUnsafePaths: true}

	got := Merge(base, overlay)
	want := []string{"/data/exports", "/tmp", "/srv/backups"}
	if !reflect.DeepEqual(got.AllowedPaths, want) {
		t.Errorf("AllowedPaths = %v, want %v", got.AllowedPaths, want)
	}
	if !got.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true when either config sets it")
	}
}
