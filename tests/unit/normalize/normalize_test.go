package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contaluz/internal/normalize"
)

func TestToFloat(t *testing.T) {
	cases := []struct {
		name string
		in   any
		def  float64
		want float64
	}{
		{"brazilian currency", "R$ 1.234,56", 0, 1234.56},
		{"comma decimal", "123,45", 0, 123.45},
		{"plain float", 99.9, 0, 99.9},
		{"int", 42, 0, 42},
		{"empty string", "", -1, -1},
		{"garbage", "n/a", -1, -1},
		{"nil", nil, -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalize.ToFloat(tc.in, tc.def))
		})
	}
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 180, normalize.ToInt("180", 0))
	assert.Equal(t, 180, normalize.ToInt(180.7, 0))
	assert.Equal(t, 180, normalize.ToInt("180.7", 0))
	assert.Equal(t, -1, normalize.ToInt("abc", -1))
	assert.Equal(t, -1, normalize.ToInt(nil, -1))
}

func TestToBool(t *testing.T) {
	assert.False(t, normalize.ToBool(nil))
	assert.False(t, normalize.ToBool(""))
	assert.False(t, normalize.ToBool("false"))
	assert.False(t, normalize.ToBool("0"))
	assert.False(t, normalize.ToBool(0.0))
	assert.True(t, normalize.ToBool("sim"))
	assert.True(t, normalize.ToBool(true))
	assert.True(t, normalize.ToBool(1.0))
}

func TestStr(t *testing.T) {
	assert.Equal(t, "", normalize.Str(nil))
	assert.Equal(t, "abc", normalize.Str("  abc  "))
	assert.Equal(t, "12345678", normalize.Str(12345678.0))
	assert.Equal(t, "12.5", normalize.Str(12.5))
	assert.Equal(t, "true", normalize.Str(true))
}

func TestMonthReference(t *testing.T) {
	cases := []struct{ in, want string }{
		{"OUT/2025", "10/2025"},
		{"out/2025", "10/2025"},
		{"OUT/25", "10/2025"},
		{"DEZ/99", "12/1999"},
		{"JAN/50", "01/2050"},
		{"FEV/51", "02/1951"},
		{"10/2025", "10/2025"},
		{"???", "???"},
		{"OUT", "OUT"},
		{"XYZ/2025", "XYZ/2025"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalize.MonthReference(tc.in), "input %q", tc.in)
	}
}

func TestCEP(t *testing.T) {
	assert.Equal(t, "74.000-123", normalize.CEP("74000123"))
	assert.Equal(t, "74.000-123", normalize.CEP("74.000-123"))
	assert.Equal(t, "30.130-010", normalize.CEP("30130-010"))
	assert.Equal(t, "7400012", normalize.CEP("7400012"))
	assert.Equal(t, "abc", normalize.CEP("abc"))
	assert.Equal(t, "", normalize.CEP(""))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "cemig-d", normalize.Key("CEMIG-D"))
	assert.Equal(t, "equatorial", normalize.Key("  Equatorial  "))
	assert.Equal(t, "enel-sp", normalize.Key("Enel / SP"))
	assert.Equal(t, "go", normalize.Key("GO"))
	assert.Equal(t, "", normalize.Key("---"))
}
