package value

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Scalars(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 123456789, time.UTC)

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), "null"},
		{"bool", Bool(true), "true"},
		{"int8", Int8(-12), "-12"},
		{"int64", Int64(9223372036854775807), "9223372036854775807"},
		{"uint64", Uint64(18446744073709551615), "18446744073709551615"},
		{"float32", Float32(12.42), "12.42"},
		{"float64", Float64(-1000.21), "-1000.21"},
		{"decimal keeps scale", Decimal(decimal.New(12300, -3)), "12.300"},
		{"decimal from parts", DecimalFromParts([]byte{0x30, 0x39}, 2, 1), "123.45"},
		{"negative decimal", DecimalFromParts([]byte{0x30, 0x39}, 2, -1), "-123.45"},
		{"string", String("abc"), "abc"},
		{"binary", Binary([]byte{0x21, 0x84, 0xF4, 0xDC, 0x01, 0x00, 0xFF, 0xF0}), "2184f4dc0100fff0"},
		{"date", Date(ts), "2021-03-04"},
		{"time", Time(ts), "05:06:07"},
		{"timestamp drops fraction", Timestamp(ts), "2021-03-04 05:06:07"},
		{"guid", GuidFromParts(0x1da1ef8f39ff4d62, 0x8b72e8e9f3371801), "1da1ef8f-39ff-4d62-8b72-e8e9f3371801"},
		{"interval", Interval("1 02:03:04.000000000"), "1 02:03:04.000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.v))
		})
	}
}

func TestRender_Composites(t *testing.T) {
	ts := time.Date(2019, 12, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"empty array", Array(), "-"},
		{"flat array", Array(Int32(1), Int32(2), Int32(3)), "[1, 2, 3]"},
		{"array with null", Array(Null(), String("x")), "[null, x]"},
		{"empty row", Row(), "()"},
		{"row", Row(String("a"), Float64(1.5)), "(a, 1.5)"},
		{"nested", Array(Row(Int64(1), Array(Int64(2), Int64(3))), Array()), "[(1, [2, 3]), -]"},
		{"deep", Array(Array(Array(Array(Bool(false))))), "[[[[false]]]]"},
		{
			"time series",
			TimeSeries(
				Point{Time: ts, Value: Float64(35.2)},
				Point{Time: ts.Add(time.Second), Value: Array(Int64(1), Int64(2))},
			),
			"[{time: 2019-12-31 23:59:59, value: 35.2}, {time: 2020-01-01 00:00:00, value: [1, 2]}]",
		},
		{"empty time series", TimeSeries(), "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.v))
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestRender_ArrayIsJoinOfElements(t *testing.T) {
	a := Row(Int32(7), String("seven"))
	b := Array(Float64(0.5), Array())
	assert.Equal(t, "["+Render(a)+", "+Render(b)+"]", Render(Array(a, b)))
}

func TestGuidFromParts_Bytes(t *testing.T) {
	g := GuidFromParts(0x0102030405060708, 0x090a0b0c0d0e0f10).AsGuid()
	assert.Equal(t, byte(0x01), g[0])
	assert.Equal(t, byte(0x08), g[7])
	assert.Equal(t, byte(0x09), g[8])
	assert.Equal(t, byte(0x10), g[15])
}

func TestTemporalNormalisation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2024, 6, 1, 1, 30, 0, 500, loc)

	d := Date(in)
	assert.Equal(t, "2024-05-31", Render(d))
	assert.Zero(t, d.AsTime().Hour())

	tm := Time(in)
	assert.Equal(t, "23:30:00", Render(tm))
	assert.Equal(t, 500, tm.AsTime().Nanosecond())
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindArray.IsComposite())
	assert.False(t, KindString.IsComposite())
	assert.True(t, KindInt16.IsSigned())
	assert.True(t, KindUint32.IsUnsigned())
	assert.True(t, KindDecimal.IsNumeric())
	assert.False(t, KindBool.IsNumeric())
	assert.Equal(t, "timeseries", KindTimeSeries.String())
	assert.Equal(t, "unknown", Kind(200).String())
}

func TestGuid_TextRoundTrip(t *testing.T) {
	g := GuidFromParts(0x1da1ef8f39ff4d62, 0x8b72e8e9f3371801)
	parsed, err := uuid.Parse(Render(g))
	require.NoError(t, err)
	assert.Equal(t, g.AsGuid(), parsed)
}
