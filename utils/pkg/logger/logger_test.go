package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReclaim_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 4, 5, 6, 7, 891_234_567, time.FixedZone("X", 3600))
	require.Equal(t, "2026-03-04T04:06:07.891Z", FormatRFC3339Millis(ts))
}

func TestReclaim_Logger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{JSON: true, Writer: &buf})
	log.Info("reclaimer: scan complete", "scanned", 3, "note", "")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "reclaimer: scan complete", rec["msg"])
	require.EqualValues(t, 3, rec["scanned"])
	require.NotContains(t, rec, "note")
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, rec["time"])
}

func TestReclaim_Logger_VerboseLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{JSON: true, Writer: &buf})
	log.Debug("hidden")
	require.Zero(t, buf.Len())

	verbose := NewWithOptions(Options{JSON: true, Verbose: true, Writer: &buf})
	verbose.Debug("shown")
	require.Contains(t, buf.String(), "shown")
}
