package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inferno/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Write.ChunkSizeBytes != engine.DefaultChunkSize {
		t.Errorf("ChunkSizeBytes = %d, want %d", cfg.Write.ChunkSizeBytes, engine.DefaultChunkSize)
	}
	if !cfg.Write.Verify {
		t.Error("Verify = false, want true by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inferno.yaml")
	content := strings.Join([]string{
		"log_level: debug",
		"write:",
		"  chunk_size_bytes: 1048576",
		"  verify: false",
		"fetch:",
		"  owner: someorg",
		"  repo: someos",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Write.ChunkSizeBytes != 1048576 {
		t.Errorf("ChunkSizeBytes = %d, want 1048576", cfg.Write.ChunkSizeBytes)
	}
	if cfg.Write.Verify {
		t.Error("Verify = true, want false")
	}
	if cfg.Fetch.Owner != "someorg" || cfg.Fetch.Repo != "someos" {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg, _ := Load("")
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Error("Validate accepted log level \"verbose\"")
	}
}

func TestValidateRejectsMisalignedChunkSize(t *testing.T) {
	cfg, _ := Load("")
	cfg.Write.ChunkSizeBytes = 1000
	if err := Validate(cfg); err == nil {
		t.Error("Validate accepted chunk size 1000")
	}
}

func TestOptionsKeepOverwriteGateClosed(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := cfg.Options()
	if opts.AllowOverwrite {
		t.Error("AllowOverwrite = true from config; only explicit confirmation may set it")
	}
	if opts.ChunkSize != cfg.Write.ChunkSizeBytes {
		t.Errorf("ChunkSize = %d, want %d", opts.ChunkSize, cfg.Write.ChunkSizeBytes)
	}
}
