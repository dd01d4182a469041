package transform

import (
	"testing"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"2024-06-01T10:00:00Z", 1717236000000, false},
		{"2024-06-01T12:00:00+02:00", 1717236000000, false},
		{"2024-06-01T10:00:00.250Z", 1717236000250, false},
		{"2024-06-01T10:00:00", 1717236000000, false},
		{"2024-06-01 10:00:00", 1717236000000, false},
		{"1717236000000", 1717236000000, false},
		{"-5", 0, true},
		{"June 1st", 0, true},
		{"2024-13-01T00:00:00Z", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapReading_Kinds(t *testing.T) {
	f32 := float32(2.5)
	s := "open"
	b := true

	tests := []struct {
		name string
		in   remote.SeriesValue
		want model.ValueKind
	}{
		{"none", remote.SeriesValue{}, model.KindNone},
		{"float64", remote.SeriesValue{Float64Value: f64(1)}, model.KindFloat64},
		{"float32", remote.SeriesValue{Float32Value: &f32}, model.KindFloat32},
		{"string", remote.SeriesValue{StringValue: &s}, model.KindString},
		{"bool", remote.SeriesValue{BoolValue: &b}, model.KindBool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Timestamp = "2024-06-01T10:00:00Z"
			r, err := mapReading(tt.in, "P1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Value.Kind())
			assert.Equal(t, "P1", r.PointID)
		})
	}
}

func TestMapReading_MultipleValues(t *testing.T) {
	_, err := mapReading(remote.SeriesValue{
		Timestamp:    "2024-06-01T10:00:00Z",
		Float64Value: f64(1),
		StringValue:  new(string),
	}, "P1")
	assert.ErrorIs(t, err, errMultipleValues)
}

func TestMapFloor(t *testing.T) {
	level := 2
	f, err := mapFloor(remote.Floor{
		ID:          "F1",
		Name:        "Second",
		Level:       &level,
		DateCreated: "2024-01-01T00:00:00Z",
	}, "B1")
	require.NoError(t, err)
	assert.Equal(t, "B1", f.BuildingID)
	assert.Equal(t, int64(1704067200000), f.DateCreated)
	assert.Zero(t, f.DateUpdated)
	require.NotNil(t, f.Level)
	assert.Equal(t, 2, *f.Level)
}

func FuzzParseTimestamp(f *testing.F) {
	f.Add("2024-06-01T10:00:00Z")
	f.Add("2024-06-01 10:00:00")
	f.Add("1717236000000")
	f.Add("")
	f.Add("not-a-date")

	f.Fuzz(func(t *testing.T, s string) {
		ms, err := ParseTimestamp(s)
		if err != nil {
			if ms != 0 {
				t.Fatalf("non-zero result %d with error %v", ms, err)
			}
			return
		}
		if ms < 0 {
			t.Fatalf("negative timestamp %d for %q", ms, s)
		}
	})
}
