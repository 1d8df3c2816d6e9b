package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/princepp/princepp/internal/cli"
)

func Test_LoadConfig_MissingProjectFile_ReturnsZeroConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := cli.LoadConfig(cli.LoadConfigInput{WorkDir: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.PwMin != nil {
		t.Fatalf("expected PwMin unset, got %v", *cfg.PwMin)
	}
}

func Test_LoadConfig_ReadsProjectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, cli.ConfigFileName)

	const body = `{
		// a comment, since this is JSONC
		"pw_min": 3,
		"elem_cnt_max": 4
	}`

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := cli.LoadConfig(cli.LoadConfigInput{WorkDir: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.PwMin == nil || *cfg.PwMin != 3 {
		t.Fatalf("PwMin = %v, want 3", cfg.PwMin)
	}

	if cfg.ElemCntMax == nil || *cfg.ElemCntMax != 4 {
		t.Fatalf("ElemCntMax = %v, want 4", cfg.ElemCntMax)
	}
}

func Test_LoadConfig_ExplicitMissingPath_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := cli.LoadConfig(cli.LoadConfigInput{
		WorkDir:    dir,
		ConfigPath: filepath.Join(dir, "does-not-exist.jsonc"),
		Env:        map[string]string{},
	})
	if err == nil {
		t.Fatal("expected an error for a missing explicit config path")
	}
}

func Test_LoadConfig_InvalidJSON_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, cli.ConfigFileName)

	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := cli.LoadConfig(cli.LoadConfigInput{WorkDir: dir, Env: map[string]string{}})
	if err == nil {
		t.Fatal("expected an error for invalid JSONC")
	}
}
