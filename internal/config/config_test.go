package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `model: large-v3
workers: 4
cuda_error_keywords:
  - "forward compatibility"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "large-v3" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.Device != "auto" || cfg.Format != "txt" {
		t.Errorf("missing keys should keep defaults: device=%q format=%q", cfg.Device, cfg.Format)
	}
	if len(cfg.CUDAErrorKeywords) != 1 || cfg.CUDAErrorKeywords[0] != "forward compatibility" {
		t.Errorf("CUDAErrorKeywords = %v", cfg.CUDAErrorKeywords)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Model != "base.en" || cfg.Device != "auto" || cfg.Workers != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}

func TestWebDAVServerCRUD(t *testing.T) {
	cfg := Default()
	if cfg.GetWebDAVServer("nas") != nil {
		t.Fatal("unexpected remote")
	}
	cfg.SetWebDAVServer("nas", WebDAVServer{URL: "https://nas.local/dav", Username: "me"})
	got := cfg.GetWebDAVServer("nas")
	if got == nil || got.URL != "https://nas.local/dav" {
		t.Fatalf("GetWebDAVServer = %+v", got)
	}
	cfg.DeleteWebDAVServer("nas")
	if cfg.GetWebDAVServer("nas") != nil {
		t.Fatal("remote not deleted")
	}
}
