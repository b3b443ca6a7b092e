package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestReclaim_Audit_Writer_Record(t *testing.T) {
	t.Parallel()

	var all, errs, reclaims bytes.Buffer
	w := NewWriter(&all, &errs, &reclaims)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	w.Record(ctx, Event{Op: OpReclaim, CycleID: "c1", Account: "acct1", Amount: 2_000_000, Success: true, Signature: "sig1", Time: ts})
	w.Record(ctx, Event{Op: OpReclaim, Account: "acct2", Success: false, Error: "already zero balance", Time: ts})
	w.Record(ctx, Event{Op: OpDiscover, Success: false, Error: "rpc down", Time: ts})
	w.Record(ctx, Event{Op: OpCycle, Success: true, Message: "scan summary", Amount: 5, Time: ts})

	allRecs := decodeLines(t, all.Bytes())
	errRecs := decodeLines(t, errs.Bytes())
	reclaimRecs := decodeLines(t, reclaims.Bytes())
	require.Len(t, allRecs, 4)
	require.Len(t, errRecs, 2)
	require.Len(t, reclaimRecs, 2)

	first := reclaimRecs[0]
	require.Equal(t, "reclaim", first["op"])
	require.Equal(t, "acct1", first["account"])
	require.EqualValues(t, 2_000_000, first["amount"])
	require.Equal(t, true, first["success"])
	require.Equal(t, "sig1", first["signature"])
	require.Equal(t, "c1", first["cycle_id"])
	require.Equal(t, "2026-01-02T03:04:05.006Z", first["time"])
	require.NotContains(t, first, "error")

	second := reclaimRecs[1]
	require.Equal(t, false, second["success"])
	require.Equal(t, "already zero balance", second["error"])
	require.NotContains(t, second, "signature")
	require.NotContains(t, second, "cycle_id")

	require.Equal(t, "discover", errRecs[1]["op"])
	require.Equal(t, "scan summary", allRecs[3]["msg"])
}

func TestReclaim_Audit_Open(t *testing.T) {
	t.Parallel()

	t.Run("requires a directory", func(t *testing.T) {
		t.Parallel()
		_, err := Open("")
		require.ErrorContains(t, err, "audit directory is required")
	})

	t.Run("appends to existing streams", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "audit")

		for i := 0; i < 2; i++ {
			w, err := Open(dir)
			require.NoError(t, err)
			w.Record(context.Background(), Event{Op: OpReclaim, Account: "a", Success: true})
			require.NoError(t, w.Close())
		}

		b, err := os.ReadFile(filepath.Join(dir, ReclaimsFile))
		require.NoError(t, err)
		require.Len(t, decodeLines(t, b), 2)

		b, err = os.ReadFile(filepath.Join(dir, ErrorsFile))
		require.NoError(t, err)
		require.Empty(t, b)
	})
}

func TestReclaim_Audit_Nop(t *testing.T) {
	t.Parallel()
	var s Sink = Nop{}
	s.Record(context.Background(), Event{Op: OpReclaim})
}
