package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/modules/backtest"
	testutil "github.com/aristath/backtester/internal/testing"
)

var testSymbols = []string{"AAA", "BBB", "CCC"}

// execute runs cmd with args and returns its exit status and captured output.
func execute(t *testing.T, cmd subcommands.Command, args ...string) (subcommands.ExitStatus, string, string) {
	t.Helper()

	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = os.Stdout, os.Stderr })

	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(args))

	status := cmd.Execute(context.Background(), f)
	return status, out.String(), errOut.String()
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	for _, key := range []string{
		"S3_ENDPOINT", "S3_BUCKET", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"BACKUP_SCHEDULE", "SIGNAL_MODE", "GO_PORT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("BACKTEST_DATA_DIR", dataDir)
	t.Setenv("LOG_LEVEL", "error")
	return dataDir
}

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	prices := testutil.WriteTempFile(t, "prices.csv", testutil.GeneratePricesCSV(start, 30, testSymbols))
	caps := testutil.WriteTempFile(t, "caps.csv", testutil.GenerateMarketCapsCSV(start, testSymbols))
	return prices, caps
}

func TestRunCmd(t *testing.T) {
	isolateEnv(t)
	prices, caps := writeInputs(t)

	status, out, errOut := execute(t, &runCmd{}, "-prices", prices, "-caps", caps)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 31)
	assert.Equal(t, "Date,Value", lines[0])
	assert.Equal(t, "2024-01-02,1", lines[1])

	var summary backtest.Summary
	require.NoError(t, json.Unmarshal([]byte(errOut), &summary))
	assert.Equal(t, backtest.SignalLagged20, summary.SignalMode)
	assert.Equal(t, 30, summary.Days)
	assert.Equal(t, 2, summary.Rebalances)
}

func TestRunCmd_OutFile(t *testing.T) {
	isolateEnv(t)
	prices, caps := writeInputs(t)
	out := filepath.Join(t.TempDir(), "index.csv")

	status, stdoutText, _ := execute(t, &runCmd{}, "-prices", prices, "-caps", caps, "-out", out, "-q", "-signal", "reference")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Empty(t, stdoutText)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "Date,Value\n"))
}

func TestRunCmd_Errors(t *testing.T) {
	isolateEnv(t)
	prices, caps := writeInputs(t)

	tests := []struct {
		name   string
		args   []string
		status subcommands.ExitStatus
	}{
		{"missing inputs", []string{"-prices", prices}, subcommands.ExitUsageError},
		{"unknown signal", []string{"-prices", prices, "-caps", caps, "-signal", "fast"}, subcommands.ExitUsageError},
		{"missing file", []string{"-prices", prices, "-caps", "/nonexistent.csv"}, subcommands.ExitFailure},
		{"caps start too late", []string{"-prices", caps, "-caps", prices}, subcommands.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, errOut := execute(t, &runCmd{}, tt.args...)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, errOut, "Error:")
		})
	}
}

func TestStoredWorkflow(t *testing.T) {
	dataDir := isolateEnv(t)
	prices, caps := writeInputs(t)

	status, out, errOut := execute(t, &importCmd{}, "-kind", "price", prices)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Imported 90 price observations")

	status, _, errOut = execute(t, &importCmd{}, "-kind", "market_cap", caps)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	status, _, _ = execute(t, &importCmd{}, "-kind", "volume", caps)
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, _, errOut = execute(t, &runCmd{}, "-prices", prices, "-caps", caps, "-save", "-q")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, errOut, "Saved run ")

	status, out, _ = execute(t, &runsCmd{}, "-json")
	require.Equal(t, subcommands.ExitSuccess, status)
	var infos []backtest.RunInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	id := infos[0].ID

	status, out, _ = execute(t, &runsCmd{})
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, id)

	status, out, _ = execute(t, &showCmd{}, id)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, `"final_value"`)

	status, out, _ = execute(t, &showCmd{}, "-series", "-", id)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.True(t, strings.HasPrefix(out, "Date,Value\n"))

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	status, out, errOut = execute(t, &backupCmd{}, "-out", archivePath)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "2 databases")
	assert.FileExists(t, archivePath)

	status, _, errOut = execute(t, &backupCmd{})
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, errOut, "S3_BUCKET")

	status, _, _ = execute(t, &deleteCmd{}, id)
	require.Equal(t, subcommands.ExitSuccess, status)

	status, _, _ = execute(t, &deleteCmd{}, id)
	assert.Equal(t, subcommands.ExitFailure, status)

	assert.FileExists(t, filepath.Join(dataDir, "history.db"))
}

func TestImportCmd_Replace(t *testing.T) {
	isolateEnv(t)
	prices, _ := writeInputs(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	corrected := testutil.WriteTempFile(t, "corrected.csv", testutil.GeneratePricesCSV(start, 2, []string{"ZZZ"}))

	status, _, errOut := execute(t, &importCmd{}, "-kind", "price", prices)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	status, out, errOut := execute(t, &importCmd{}, "-kind", "price", corrected)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "(30 dates, 4 symbols stored)")

	status, out, errOut = execute(t, &importCmd{}, "-kind", "price", "-replace", corrected)
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Imported 2 price observations (2 dates, 1 symbols stored)")
}
