package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caliperdev/campaignmanager/internal/models"
)

func TestWritePivotRemainderAndAxis(t *testing.T) {
	c := &models.Campaign{
		ID:              1,
		Name:            "Launch",
		StartDate:       models.NewDate(2025, time.March, 1),
		EndDate:         models.NewDate(2025, time.March, 3),
		ImpressionsGoal: 100,
	}

	var buf bytes.Buffer
	today := time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
	rows, err := WritePivot(&buf, []*models.Campaign{c}, today)
	require.NoError(t, err)
	// axis runs from 2025-01-01 through today: 31+28+3 data rows
	require.Equal(t, 62, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 63)
	require.Equal(t, "Date,Launch", lines[0])

	// out-of-flight cells are empty, not zero
	require.Equal(t, "2025-01-01,", lines[1])
	require.Equal(t, "2025-02-28,", lines[59])

	require.Equal(t, "2025-03-01,33", lines[60])
	require.Equal(t, "2025-03-02,33", lines[61])
	require.Equal(t, "2025-03-03,34", lines[62])
}

func TestWritePivotZeroMeansDark(t *testing.T) {
	c := &models.Campaign{
		ID:               1,
		Name:             "Dark Start",
		StartDate:        models.NewDate(2025, time.January, 1),
		EndDate:          models.NewDate(2025, time.January, 3),
		ImpressionsGoal:  10,
		DistributionMode: models.DistributionCustom,
		CustomRanges: []models.Range{
			{StartDate: models.NewDate(2025, time.January, 1), EndDate: models.NewDate(2025, time.January, 1), IsDark: true},
		},
	}

	var buf bytes.Buffer
	today := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	_, err := WritePivot(&buf, []*models.Campaign{c}, today)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, "2025-01-01,0", lines[1])
	require.Equal(t, "2025-01-02,5", lines[2])
	require.Equal(t, "2025-01-03,5", lines[3])
}

func TestWritePivotGroupingAndEscaping(t *testing.T) {
	c := &models.Campaign{
		ID:              1,
		Name:            `Brand "Q1", Display`,
		StartDate:       models.NewDate(2025, time.January, 1),
		EndDate:         models.NewDate(2025, time.January, 1),
		ImpressionsGoal: 1234567,
	}

	var buf bytes.Buffer
	today := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := WritePivot(&buf, []*models.Campaign{c}, today)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, `Date,"Brand ""Q1"", Display"`, lines[0])
	require.Equal(t, `2025-01-01,"1,234,567"`, lines[1])
}

func TestWritePivotSkipsInvalidCampaigns(t *testing.T) {
	bad := &models.Campaign{
		ID:        1,
		Name:      "Inverted",
		StartDate: models.NewDate(2025, time.March, 5),
		EndDate:   models.NewDate(2025, time.March, 1),
	}

	var buf bytes.Buffer
	today := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := WritePivot(&buf, []*models.Campaign{bad}, today)
	require.NoError(t, err)
	require.Equal(t, 1, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, "Date", lines[0])
}

func TestWriteLong(t *testing.T) {
	a := &models.Campaign{
		ID:              1,
		Name:            "A",
		StartDate:       models.NewDate(2025, time.March, 1),
		EndDate:         models.NewDate(2025, time.March, 2),
		ImpressionsGoal: 10,
		CSVData:         map[string]string{"Insertion Order ID": "IO-1"},
	}
	b := &models.Campaign{
		ID:              2,
		Name:            "B",
		StartDate:       models.NewDate(2025, time.March, 2),
		EndDate:         models.NewDate(2025, time.March, 3),
		ImpressionsGoal: 5,
		CSVData:         map[string]string{"Insertion Order ID": "IO-2"},
	}

	var buf bytes.Buffer
	rows, err := WriteLong(&buf, []*models.Campaign{a, b}, "Insertion Order ID")
	require.NoError(t, err)
	require.Equal(t, 6, rows)

	want := strings.Join([]string{
		"Date,Insertion Order ID,Daily Allocated Impressions Goal",
		"2025-03-01,IO-1,5",
		"2025-03-01,IO-2,",
		"2025-03-02,IO-1,5",
		"2025-03-02,IO-2,2",
		"2025-03-03,IO-1,",
		"2025-03-03,IO-2,3",
		"",
	}, "\n")
	require.Equal(t, want, buf.String())
}

func TestWriteLongKeyFallsBackToID(t *testing.T) {
	c := &models.Campaign{
		ID:              42,
		Name:            "No Key",
		StartDate:       models.NewDate(2025, time.March, 1),
		EndDate:         models.NewDate(2025, time.March, 1),
		ImpressionsGoal: 1,
	}

	var buf bytes.Buffer
	_, err := WriteLong(&buf, []*models.Campaign{c}, "Insertion Order ID")
	require.NoError(t, err)
	require.Contains(t, buf.String(), "2025-03-01,42,1")
}

func TestWriteLongEmpty(t *testing.T) {
	var buf bytes.Buffer
	rows, err := WriteLong(&buf, nil, "")
	require.NoError(t, err)
	require.Zero(t, rows)
	require.Equal(t, "Date,Insertion Order ID,Daily Allocated Impressions Goal\n", buf.String())
}

func TestGroupThousands(t *testing.T) {
	require.Equal(t, "0", groupThousands(0))
	require.Equal(t, "999", groupThousands(999))
	require.Equal(t, "1,000", groupThousands(1000))
	require.Equal(t, "1,234,567", groupThousands(1234567))
	require.Equal(t, "-1,234", groupThousands(-1234))
}

func TestEscapeField(t *testing.T) {
	require.Equal(t, "plain", escapeField("plain"))
	require.Equal(t, `"a,b"`, escapeField("a,b"))
	require.Equal(t, `"say ""hi"""`, escapeField(`say "hi"`))
	require.Equal(t, "\"two\nlines\"", escapeField("two\nlines"))
}
