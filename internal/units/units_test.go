package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		name string
		qty  float64
		from Unit
		to   Unit
		want float64
	}{
		{"g to kg", 2500, Gram, Kilogram, 2.5},
		{"kg to g", 1.2, Kilogram, Gram, 1200},
		{"ml to L", 750, Milliliter, Liter, 0.75},
		{"L to ml", 0.06, Liter, Milliliter, 60},
		{"pcs identity", 3, Piece, Piece, 3},
		{"same unit", 42, Gram, Gram, 42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(tc.qty, tc.from, tc.to)
			require.NoError(t, err)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestConvertIncompatibleFamilies(t *testing.T) {
	_, err := Convert(100, Gram, Piece)
	require.ErrorIs(t, err, ErrIncompatibleUnits)

	_, err = Convert(100, Milliliter, Kilogram)
	require.ErrorIs(t, err, ErrIncompatibleUnits)
}

func TestConvertUnknownUnit(t *testing.T) {
	_, err := Convert(1, Unit("oz"), Gram)
	require.ErrorIs(t, err, ErrUnknownUnit)

	_, err = Convert(1, Gram, Unit(""))
	require.ErrorIs(t, err, ErrUnknownUnit)
}

func TestFamilyOf(t *testing.T) {
	fam, err := FamilyOf(Liter)
	require.NoError(t, err)
	require.Equal(t, FamilyVolume, fam)

	_, err = FamilyOf(Unit("dozen"))
	require.ErrorIs(t, err, ErrUnknownUnit)
}
