package cli_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/princepp/princepp/internal/cli"
)

func Test_Run_VersionFlag_PrintsVersionAndExitsZero(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--version")

	cli.AssertContains(t, stdout, "princepp")
}

func Test_Run_NoWordsOnStdin_FailsWithNoCandidateLengths(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--pw-min", "1", "--pw-max", "1")

	cli.AssertContains(t, stderr, "no candidate lengths")
}

func Test_Run_Keyspace_ReportsTotalCombinations(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	words := "a\nb\nc\n"

	stdout := c.MustRunWithInput(words, "--keyspace", "--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8")

	if strings.TrimSpace(stdout) != "9" {
		t.Fatalf("keyspace = %q, want %q", strings.TrimSpace(stdout), "9")
	}
}

func Test_Run_Enumerate_ProducesExpectedCandidates(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	words := "a\nb\nc\n"

	stdout := c.MustRunWithInput(words, "--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8")

	want := "aa\nba\nca\nab\nbb\ncb\nac\nbc\ncc\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func Test_Run_SkipAndLimit_ComposeIntoTheFullOutput(t *testing.T) {
	t.Parallel()

	c1 := cli.NewCLI(t)
	c2 := cli.NewCLI(t)
	words := "a\nb\nc\n"
	commonArgs := []string{"--pw-min", "2", "--pw-max", "2", "--elem-cnt-min", "1", "--elem-cnt-max", "8"}

	shardA := c1.MustRunWithInput(words, append(append([]string{}, commonArgs...), "--skip", "0", "--limit", "4")...)
	shardB := c2.MustRunWithInput(words, append(append([]string{}, commonArgs...), "--skip", "4", "--limit", "5")...)

	full := cli.NewCLI(t).MustRunWithInput(words, commonArgs...)

	if shardA+shardB != full {
		t.Fatalf("shards did not compose: shardA=%q shardB=%q full=%q", shardA, shardB, full)
	}
}

func Test_Run_OutputFile_AppendsAcrossInvocations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	words := "a\nb\n"
	args := []string{"--pw-min", "1", "--pw-max", "1", "--elem-cnt-min", "1", "--elem-cnt-max", "1", "--output-file", path}

	c1 := cli.NewCLI(t)
	c1.MustRunWithInput(words, args...)

	c2 := cli.NewCLI(t)
	c2.MustRunWithInput(words, args...)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	want := "a\nb\na\nb\n"
	if string(data) != want {
		t.Fatalf("output file content = %q, want %q", string(data), want)
	}
}

func Test_Run_InitConfig_WritesDefaultConfigFile(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := filepath.Join(c.Dir, "custom.jsonc")

	c.MustRun("--init-config", "--config", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	cli.AssertContains(t, string(data), "pw_min")
}

func Test_Run_InvalidPwRange_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--pw-min", "10", "--pw-max", "2")

	cli.AssertContains(t, stderr, "error:")
}

func Test_Run_Help_PrintsUsage(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--help")

	cli.AssertContains(t, stdout, "Usage:")
}
