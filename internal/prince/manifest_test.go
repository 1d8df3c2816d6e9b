package prince_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/princepp/princepp/internal/prince"
	"github.com/princepp/princepp/pkg/fs"
)

func Test_NewRunID_IsStableFormatAndUnique(t *testing.T) {
	t.Parallel()

	a, err := prince.NewRunID()
	require.NoError(t, err)

	b, err := prince.NewRunID()
	require.NoError(t, err)

	require.Len(t, a, 12)

	const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	for _, r := range a {
		if !strings.ContainsRune(crockford, r) {
			t.Fatalf("run id %q contains non-Crockford rune %q", a, r)
		}
	}

	require.NotEqual(t, a, b, "expected distinct run ids")
}

func Test_BuildManifest_AndWriteManifest_RoundTrip(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()
	for _, w := range []string{"a", "b", "c"} {
		require.NoError(t, table.Add([]byte(w)))
	}

	e, err := prince.NewEngine(table, prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8})
	require.NoError(t, err)

	runID, err := prince.NewRunID()
	require.NoError(t, err)

	m := prince.BuildManifest(e, runID)

	require.Equal(t, "9", m.TotalKsCnt)
	require.Equal(t, runID, m.RunID)

	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")

	writer := fs.NewAtomicWriter(fs.NewReal())

	require.NoError(t, prince.WriteManifest(writer, path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded prince.Manifest
	require.NoError(t, json.Unmarshal(data, &decoded))

	// GeneratedAt loses monotonic-clock reading across the JSON round trip;
	// everything else must match exactly.
	if diff := cmp.Diff(m, decoded, cmpopts.IgnoreFields(prince.Manifest{}, "GeneratedAt")); diff != "" {
		t.Fatalf("decoded manifest differs from original (-want +got):\n%s", diff)
	}
}
