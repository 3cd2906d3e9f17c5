package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func validCampaign() *Campaign {
	return &Campaign{
		ID:              1,
		Name:            "Spring Launch",
		StartDate:       NewDate(2025, time.March, 1),
		EndDate:         NewDate(2025, time.March, 31),
		ImpressionsGoal: 100000,
	}
}

func TestCampaignValidate(t *testing.T) {
	require.NoError(t, validCampaign().Validate())

	c := validCampaign()
	c.ID = 0
	require.Error(t, c.Validate())

	c = validCampaign()
	c.Name = ""
	require.Error(t, c.Validate())

	c = validCampaign()
	c.StartDate, c.EndDate = c.EndDate, c.StartDate
	require.Error(t, c.Validate())

	c = validCampaign()
	c.ImpressionsGoal = -1
	require.Error(t, c.Validate())

	c = validCampaign()
	c.DistributionMode = "weird"
	require.Error(t, c.Validate())
}

func TestCampaignValidateRanges(t *testing.T) {
	c := validCampaign()
	c.DistributionMode = DistributionCustom
	c.CustomRanges = []Range{
		{StartDate: NewDate(2025, time.March, 5), EndDate: NewDate(2025, time.March, 10), ImpressionsGoal: ptr(1000)},
	}
	require.NoError(t, c.Validate())

	// range outside the flight
	c.CustomRanges = []Range{
		{StartDate: NewDate(2025, time.February, 25), EndDate: NewDate(2025, time.March, 10)},
	}
	require.Error(t, c.Validate())

	// inverted range
	c.CustomRanges = []Range{
		{StartDate: NewDate(2025, time.March, 10), EndDate: NewDate(2025, time.March, 5)},
	}
	require.Error(t, c.Validate())
}

func TestDetectOverlap(t *testing.T) {
	ranges := []Range{
		{StartDate: NewDate(2025, time.January, 1), EndDate: NewDate(2025, time.January, 10)},
		{StartDate: NewDate(2025, time.January, 5), EndDate: NewDate(2025, time.January, 15)},
	}
	i, j, ok := DetectOverlap(ranges)
	require.True(t, ok)
	require.Equal(t, 0, i)
	require.Equal(t, 1, j)

	disjoint := []Range{
		{StartDate: NewDate(2025, time.January, 1), EndDate: NewDate(2025, time.January, 10)},
		{StartDate: NewDate(2025, time.January, 11), EndDate: NewDate(2025, time.January, 15)},
	}
	_, _, ok = DetectOverlap(disjoint)
	require.False(t, ok)

	// single shared day counts as overlap
	touching := []Range{
		{StartDate: NewDate(2025, time.January, 1), EndDate: NewDate(2025, time.January, 10)},
		{StartDate: NewDate(2025, time.January, 10), EndDate: NewDate(2025, time.January, 15)},
	}
	_, _, ok = DetectOverlap(touching)
	require.True(t, ok)
}

func TestOverAllocation(t *testing.T) {
	c := validCampaign()
	c.DistributionMode = DistributionCustom
	c.ImpressionsGoal = 1000
	c.CustomRanges = []Range{
		{StartDate: NewDate(2025, time.March, 1), EndDate: NewDate(2025, time.March, 5), ImpressionsGoal: ptr(600)},
		{StartDate: NewDate(2025, time.March, 10), EndDate: NewDate(2025, time.March, 15), ImpressionsGoal: ptr(700)},
	}
	require.Equal(t, int64(300), OverAllocation(c))

	// dark ranges contribute nothing
	c.CustomRanges[1].IsDark = true
	require.Equal(t, int64(0), OverAllocation(c))

	// even mode never over-allocates
	c.DistributionMode = DistributionEven
	require.Equal(t, int64(0), OverAllocation(c))
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2025, time.March, 7)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"2025-03-07"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal(raw, &back))
	require.True(t, d.Equal(back.Time))

	// RFC3339 timestamps from older clients collapse to midnight
	require.NoError(t, json.Unmarshal([]byte(`"2025-03-07T15:04:05Z"`), &back))
	require.True(t, d.Equal(back.Time))
}

func TestCampaignField(t *testing.T) {
	c := validCampaign()
	c.CSVData = map[string]string{"Insertion Order ID": " IO-42 "}
	require.Equal(t, "IO-42", c.Field("Insertion Order ID"))
	require.Equal(t, "", c.Field("missing"))
}

func TestParseCountAndAmount(t *testing.T) {
	v, ok := ParseCount("1,234,567")
	require.True(t, ok)
	require.Equal(t, int64(1234567), v)

	f, ok := ParseAmount(" 12,345.67 ")
	require.True(t, ok)
	require.InDelta(t, 12345.67, f, 1e-9)

	_, ok = ParseAmount("NaN")
	require.False(t, ok)

	_, ok = ParseCount("")
	require.False(t, ok)
}
