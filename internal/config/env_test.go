package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent")); err != nil {
		t.Fatalf("missing file should return nil: %v", err)
	}
}

func TestLoadEnvFileSetsVariables(t *testing.T) {
	path := writeEnvFile(t, "ASTRA_PIPELINE=/etc/astra/pipeline.json\n# comment\nASTRA_DEBUG=1\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ASTRA_PIPELINE"); got != "/etc/astra/pipeline.json" {
		t.Errorf("ASTRA_PIPELINE = %q", got)
	}
	if got := os.Getenv("ASTRA_DEBUG"); got != "1" {
		t.Errorf("ASTRA_DEBUG = %q", got)
	}
}

func TestLoadEnvFileUnquotesValues(t *testing.T) {
	path := writeEnvFile(t, `ASTRA_SYNC_OPTS="20,10,16"`)
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ASTRA_SYNC_OPTS"); got != "20,10,16" {
		t.Errorf("ASTRA_SYNC_OPTS = %q", got)
	}
}

func TestLoadEnvFileSkipsMalformedLines(t *testing.T) {
	path := writeEnvFile(t, "=nokey\njusttext\nASTRA_LISTEN_HEALTH=:9309\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ASTRA_LISTEN_HEALTH"); got != ":9309" {
		t.Errorf("ASTRA_LISTEN_HEALTH = %q", got)
	}
}
