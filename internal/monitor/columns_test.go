package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectExactBeforeSubstring(t *testing.T) {
	det := NewColumnDetector()

	col, ok := det.Detect([]string{"Campaign", "Insertion Order ID", "IO Notes"}, JoinKeyCandidates)
	require.True(t, ok)
	require.Equal(t, "Insertion Order ID", col)
}

func TestDetectNormalization(t *testing.T) {
	det := NewColumnDetector()

	for _, name := range []string{"insertion_order_id", "Insertion-Order-ID", " insertion order id ", "InsertionOrderID"} {
		col, ok := det.Detect([]string{"x", name}, JoinKeyCandidates)
		require.True(t, ok, "name %q", name)
		require.Equal(t, name, col)
	}
}

func TestDetectSubstringTolerance(t *testing.T) {
	det := NewColumnDetector()

	col, ok := det.Detect([]string{"Report Date (UTC)"}, DateCandidates)
	require.True(t, ok)
	require.Equal(t, "Report Date (UTC)", col)

	col, ok = det.Detect([]string{"Total Media Cost USD"}, CostCandidates)
	require.True(t, ok)
	require.Equal(t, "Total Media Cost USD", col)
}

func TestDetectMiss(t *testing.T) {
	det := NewColumnDetector()
	_, ok := det.Detect([]string{"foo", "bar"}, JoinKeyCandidates)
	require.False(t, ok)
}

func TestDetectCPMDoesNotStealCeltraColumn(t *testing.T) {
	det := NewColumnDetector()
	cols := []string{"CPM Celtra", "CPM Rate"}

	celtra, ok := det.Detect(cols, CPMCeltraCandidates)
	require.True(t, ok)
	require.Equal(t, "CPM Celtra", celtra)

	cpm, ok := det.DetectExcluding(cols, CPMCandidates, celtra)
	require.True(t, ok)
	require.Equal(t, "CPM Rate", cpm)
}

func TestDetectCeltraOnlyColumn(t *testing.T) {
	det := NewColumnDetector()
	cols := []string{"CPM Celtra"}

	celtra, _ := det.Detect(cols, CPMCeltraCandidates)
	require.Equal(t, "CPM Celtra", celtra)

	// with the celtra column excluded there is no plain CPM column
	_, ok := det.DetectExcluding(cols, CPMCandidates, celtra)
	require.False(t, ok)
}
