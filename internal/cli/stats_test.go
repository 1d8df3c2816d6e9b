package cli_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/princepp/princepp/internal/cli"
)

func Test_Run_StatsFile_WritesReadableManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	words := "a\nb\nc\n"

	c := cli.NewCLI(t)
	c.MustRunWithInput(words, "--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8", "--stats-file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var manifest struct {
		RunID      string `json:"run_id"`
		PwMin      int    `json:"pw_min"`
		PwMax      int    `json:"pw_max"`
		TotalKsCnt string `json:"total_ks_cnt"`
	}

	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("Unmarshal: %v\ncontent: %s", err, data)
	}

	if manifest.RunID == "" {
		t.Fatal("expected a non-empty run_id")
	}

	if manifest.PwMin != 2 || manifest.PwMax != 2 {
		t.Fatalf("pw_min/pw_max = %d/%d, want 2/2", manifest.PwMin, manifest.PwMax)
	}

	if manifest.TotalKsCnt != "9" {
		t.Fatalf("total_ks_cnt = %q, want %q", manifest.TotalKsCnt, "9")
	}
}

func Test_Run_StatsCache_ReusedAcrossInvocationsProducesSameOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.bin")
	words := "a\nb\nc\n"
	args := []string{
		"--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8",
		"--stats-cache", cachePath,
	}

	c1 := cli.NewCLI(t)
	first := c1.MustRunWithInput(words, args...)

	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("expected --stats-cache to create %s: %v", cachePath, err)
	}

	c2 := cli.NewCLI(t)
	second := c2.MustRunWithInput(words, args...)

	if first != second {
		t.Fatalf("output changed across cached invocations:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func Test_Run_StatsCache_IncompatibleFileWarnsAndRecomputes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.bin")
	args := []string{"--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8", "--stats-cache", cachePath}

	c1 := cli.NewCLI(t)
	c1.MustRunWithInput("a\nb\nc\n", args...)

	// A different wordlist changes the cache's wordlist fingerprint, so
	// reusing the same cache file must fall back to recomputing rather
	// than failing the run.
	c2 := cli.NewCLI(t)
	stdout, stderr, code := c2.RunWithInput("x\ny\nz\n", args...)

	// Finish() reports exit code 1 whenever a warning was raised, even
	// though candidates were enumerated successfully.
	if code != 1 {
		t.Fatalf("expected exit code 1 (warned but not failed), got %d\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stderr, "warning:")

	want := "xx\nyx\nzx\nxy\nyy\nzy\nxz\nyz\nzz\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}
