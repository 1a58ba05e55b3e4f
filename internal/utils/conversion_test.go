package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      sdkmath.Int
		decimals int
		want     string
	}{
		{"usdc base amount", sdkmath.NewInt(1_000_000_000), 6, "1000.000000000000000000"},
		{"sub unit usdc", sdkmath.NewInt(1), 6, "0.000001000000000000"},
		{"one wei dai", sdkmath.NewInt(1), 18, "0.000000000000000001"},
		{"zero", sdkmath.ZeroInt(), 18, "0.000000000000000000"},
		{"no precision", sdkmath.NewInt(42), 0, "42.000000000000000000"},
		{"24 decimals truncates below 1e-18", sdkmath.NewIntWithDecimal(15, 23).AddRaw(999_999), 24, "1.500000000000000000"},
		{"36 decimals", sdkmath.NewIntWithDecimal(2, 36), 36, "2.000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := Normalize(sdkmath.NewInt(1), types.MaxDecimals+1)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = Normalize(sdkmath.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
	_, err = Normalize(sdkmath.Int{}, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestNormalizeWholeFloors(t *testing.T) {
	got, err := NormalizeWhole(sdkmath.NewInt(1_999_999), 6)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1), got)
}

func TestDenormalize(t *testing.T) {
	human := sdkmath.LegacyMustNewDecFromStr("1.0000015")

	raw, err := Denormalize(human, 6)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000_001), raw, "fraction of the smallest unit is floored")

	_, err = DenormalizeExact(human, 6)
	assert.ErrorIs(t, err, types.ErrPrecision)

	raw, err = DenormalizeExact(human, 18)
	require.NoError(t, err)
	assert.Equal(t, "1000001500000000000", raw.String())
}

func TestRoundTripIsExact(t *testing.T) {
	for _, decimals := range []int{0, 6, 18} {
		raw := sdkmath.NewInt(123_456_789)
		human, err := Normalize(raw, decimals)
		require.NoError(t, err)
		back, err := DenormalizeExact(human, decimals)
		require.NoError(t, err)
		assert.Equal(t, raw, back, "decimals %d", decimals)
	}
}

func TestParseHumanAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
		wantErr  error
	}{
		{"1000", 6, "1000000000", nil},
		{"1000.5", 6, "1000500000", nil},
		{".25", 18, "250000000000000000", nil},
		{"0.000001", 6, "1", nil},
		{"1.0000000", 6, "1000000", nil},
		{"1.0000001", 6, "", types.ErrPrecision},
		{"-1", 6, "", ErrInvalidAmount},
		{"1e6", 6, "", ErrInvalidAmount},
		{"", 6, "", ErrInvalidAmount},
		{"0", 6, "0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHumanAmount(tt.in, tt.decimals)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatHuman(t *testing.T) {
	assert.Equal(t, "1000", FormatHuman(sdkmath.NewInt(1_000_000_000), 6))
	assert.Equal(t, "0.000001", FormatHuman(sdkmath.NewInt(1), 6))
	assert.Equal(t, "12.5", FormatHuman(sdkmath.NewInt(12_500_000), 6))
	assert.Equal(t, "7", FormatHuman(sdkmath.NewInt(7), 0))
	assert.Equal(t, "0", FormatHuman(sdkmath.ZeroInt(), 18))
}

func TestScaleDecimals(t *testing.T) {
	assert.Equal(t, "1000000000000000000", ScaleDecimals(sdkmath.NewInt(1_000_000), 6, 18).String())
	assert.Equal(t, "1", ScaleDecimals(sdkmath.NewInt(1_999_999_999_999), 18, 6).String())
	assert.Equal(t, "5", ScaleDecimals(sdkmath.NewInt(5), 6, 6).String())
}
