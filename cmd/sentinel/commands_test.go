package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/testutil"
)

// setupCLI points the CLI at a fresh database.
func setupCLI(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	dbPath := filepath.Join(t.TempDir(), "sentinel.db")
	viper.Set("database.path", dbPath)
	return dbPath
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestMigrateCommand(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "", "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "migration(s) pending")

	out, err = execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database at schema version")
	assert.Contains(t, out, "with 0 invoice(s)")

	_, err = execute(t, toJSON(t, testutil.Series("acme", "Acme Supplies", 3, 100)), "import", "-")
	require.NoError(t, err)

	out, err = execute(t, "", "migrate", "--status")
	require.NoError(t, err)
	assert.NotContains(t, out, "pending")
	assert.Contains(t, out, "Invoices:        3")
}

func TestAssessWorkflow(t *testing.T) {
	setupCLI(t)

	history := testutil.Series("acme", "Acme Supplies", 6, 100)
	out, err := execute(t, toJSON(t, history), "import", "-", "--approved")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 6 invoice(s)")

	inflated := testutil.NewInvoice("acme-big").Amount(900).DaysAfter(30).Build()

	t.Run("assess prints json", func(t *testing.T) {
		out, err := execute(t, toJSON(t, inflated), "assess", "-", "--json")
		require.NoError(t, err)

		var results []assessOutput
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 1)
		require.NotNil(t, results[0].Assessment)
		assert.Equal(t, "acme-big", results[0].InvoiceID)
		assert.Contains(t, results[0].Assessment.Flags(), model.DetectorInflation.Flag())
		assert.NotEqual(t, model.DecisionApprove, results[0].Assessment.Decision)
	})

	t.Run("outcome requires a stored invoice", func(t *testing.T) {
		_, err := execute(t, "", "outcome", "acme-big", "--reject")
		require.ErrorContains(t, err, "No stored invoice")
	})

	t.Run("saved and rejected", func(t *testing.T) {
		out, err := execute(t, toJSON(t, inflated), "assess", "-", "--save")
		require.NoError(t, err)
		assert.Contains(t, out, "Invoice acme-big")
		assert.Contains(t, out, "Saved 1 invoice(s)")

		out, err = execute(t, "", "outcome", "acme-big", "--reject")
		require.NoError(t, err)
		assert.Contains(t, out, "Rejected invoice acme-big")
	})

	t.Run("baselines ignore rejected invoices", func(t *testing.T) {
		out, err := execute(t, "", "baselines", "list", "--json")
		require.NoError(t, err)

		var baselines []model.VendorBaseline
		require.NoError(t, json.Unmarshal([]byte(out), &baselines))
		require.Len(t, baselines, 1)
		assert.Equal(t, "name:acme supplies", baselines[0].VendorKey)
		assert.Equal(t, 6, baselines[0].Count)
		assert.InDelta(t, 100.0, baselines[0].Mean, 1e-9)
	})

	t.Run("vendors", func(t *testing.T) {
		out, err := execute(t, "", "vendors", "set", "Acme Supplies", "--registered=false")
		require.NoError(t, err)
		assert.Contains(t, out, "Updated vendor name:acme supplies")

		out, err = execute(t, "", "vendors", "show", "Acme Supplies")
		require.NoError(t, err)
		assert.Contains(t, out, "MANUAL")
		assert.Contains(t, out, "6")

		out, err = execute(t, "", "vendors", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "name:acme supplies")
	})
}

func TestRepeatedApprovals(t *testing.T) {
	setupCLI(t)

	history := testutil.Series("acme", "Acme Supplies", 4, 100)
	for range 2 {
		_, err := execute(t, toJSON(t, history), "import", "-", "--approved")
		require.NoError(t, err)
	}
	_, err := execute(t, "", "outcome", "acme-1", "--approve")
	require.NoError(t, err)

	_, err = execute(t, "", "outcome", "acme-1", "--reject")
	require.ErrorContains(t, err, "already approved")

	out, err := execute(t, "", "baselines", "list", "--json")
	require.NoError(t, err)
	var baselines []model.VendorBaseline
	require.NoError(t, json.Unmarshal([]byte(out), &baselines))
	require.Len(t, baselines, 1)
	assert.Equal(t, 4, baselines[0].Count)
}

func TestOutcomeRefusesMemoryStore(t *testing.T) {
	setupCLI(t)

	_, err := execute(t, toJSON(t, testutil.Series("acme", "Acme Supplies", 1, 100)), "import", "-")
	require.NoError(t, err)

	viper.Set("baseline.store", "memory")
	_, err = execute(t, "", "outcome", "acme-1", "--approve")
	require.ErrorContains(t, err, "memory baseline store")
}

func TestAssessJSONSummary(t *testing.T) {
	setupCLI(t)

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(toJSON(t, testutil.Series("acme", "Acme Supplies", 2, 104.37))))
	cmd.SetArgs([]string{"assess", "-", "--json"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var summary struct {
		Total  int `json:"total"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(errOut.Bytes()), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Zero(t, summary.Failed)
}

func TestOutcomeFlags(t *testing.T) {
	setupCLI(t)

	_, err := execute(t, "", "outcome", "inv-1")
	require.Error(t, err)

	_, err = execute(t, "", "outcome", "inv-1", "--approve", "--reject")
	require.Error(t, err)
}

func TestAssessRejectsInvalidConfig(t *testing.T) {
	setupCLI(t)
	viper.Set("baseline.store", "postgres")

	_, err := execute(t, "{}", "assess", "-")
	require.ErrorContains(t, err, "invalid configuration")
}

func TestVersionCommand(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "sentinel dev\n", out)
}
