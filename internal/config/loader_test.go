package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/hermesmic/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Microphone.RecordCommand[0] != "arecord" {
		t.Errorf("record command = %v", cfg.Microphone.RecordCommand)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("microphone: {sample_width: 7}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q should name the file", err)
	}
}

func TestLoadFromReader_EmptyDocumentFailsValidation(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "record_command") {
		t.Errorf("err = %v, want missing record_command", err)
	}
}
