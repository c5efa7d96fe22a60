package appbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanyzhang/tsodbc/value"
)

func TestCType_Size(t *testing.T) {
	tests := []struct {
		c    CType
		want int
	}{
		{CSTinyInt, 1},
		{CBit, 1},
		{CSShort, 2},
		{CSLong, 4},
		{CFloat, 4},
		{CSBigInt, 8},
		{CDouble, 8},
		{CDate, 6},
		{CTime, 6},
		{CTimestamp, 16},
		{CGuid, 16},
		{CNumeric, 19},
		{CChar, 0},
		{CWChar, 0},
		{CBinary, 0},
	}
	for _, tt := range tests {
		t.Run(tt.c.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Size())
		})
	}
}

func TestParseCType(t *testing.T) {
	c, err := ParseCType("SQL_C_SLONG")
	require.NoError(t, err)
	assert.Equal(t, CSLong, c)

	_, err = ParseCType("SQL_C_NOPE")
	assert.ErrorIs(t, err, ErrUnsupportedTargetType)

	assert.Equal(t, "CType(1234)", CType(1234).String())
}

func TestSQLType_DefaultCType(t *testing.T) {
	assert.Equal(t, CSBigInt, SQLBigInt.DefaultCType())
	assert.Equal(t, CNumeric, SQLDecimal.DefaultCType())
	assert.Equal(t, CChar, SQLVarChar.DefaultCType())
	assert.Equal(t, CBinary, SQLVarBinary.DefaultCType())
	assert.Equal(t, "SQL_TYPE_TIMESTAMP", SQLTimestamp.String())
}

func TestBuffer_ElementOffset(t *testing.T) {
	b := NewArray(CSLong, 0, 3)
	for i := 0; i < 3; i++ {
		b.SetElementOffset(i)
		res, err := b.PutInt32(int32(i * 10))
		require.NoError(t, err)
		assert.Equal(t, ConvSuccess, res)
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, uint32(i*10), le.Uint32(b.data[4*i:]))
		assert.Equal(t, uint64(4), le.Uint64(b.ind[8*i:]))
	}

	b.SetElementOffset(1)
	got, err := b.GetInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(10), got)
}

func TestBuffer_ByteAndElementOffsetCompose(t *testing.T) {
	data := make([]byte, 16)
	ind := make([]byte, 32)
	b := Wrap(CSLong, data, 0, ind)
	b.SetByteOffset(8)
	b.SetElementOffset(1)

	_, err := b.PutInt32(-2)
	require.NoError(t, err)

	// data at 8 + 1*4, indicator at 8 + 1*8
	assert.Equal(t, []byte{0xFE, 0xFF, 0xFF, 0xFF}, data[12:16])
	assert.Equal(t, uint64(4), le.Uint64(ind[16:]))
	assert.Equal(t, make([]byte, 12), data[:12])
}

func TestBuffer_VarLenElementStride(t *testing.T) {
	b := NewArray(CChar, 4, 2)
	b.SetElementOffset(1)
	_, err := b.PutString("ab")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 'a', 'b', 0, 0}, b.data)
}

func TestBuffer_OutOfBounds(t *testing.T) {
	b := NewArray(CSLong, 0, 2)

	b.SetElementOffset(2)
	_, err := b.PutInt32(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	b.SetElementOffset(0)
	b.SetByteOffset(-4)
	_, err = b.PutInt32(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	b.SetByteOffset(0)
	_, err = b.GetValue()
	assert.NoError(t, err)

	short := Wrap(CSBigInt, make([]byte, 4), 0, nil)
	_, err = short.PutInt64(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestBuffer_PutNull(t *testing.T) {
	b := New(CSLong, 0)
	res, err := b.PutValue(value.Null())
	require.NoError(t, err)
	assert.Equal(t, ConvSuccess, res)
	assert.True(t, b.IsNull())

	ind, err := b.Indicator()
	require.NoError(t, err)
	assert.Equal(t, NullData, ind)

	v, err := b.GetValue()
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	noInd := Wrap(CSLong, make([]byte, 4), 0, nil)
	assert.ErrorIs(t, noInd.PutNull(), ErrIndicatorRequired)
	_, err = noInd.PutInt32(7)
	assert.NoError(t, err)
	assert.False(t, noInd.HasIndicator())
}

func TestBuffer_UnsupportedTargetType(t *testing.T) {
	for _, c := range []CType{CDefault, CType(1234)} {
		b := Wrap(c, make([]byte, 8), 8, make([]byte, 8))
		_, err := b.PutInt32(1)
		assert.ErrorIs(t, err, ErrUnsupportedTargetType)
		_, err = b.GetValue()
		assert.ErrorIs(t, err, ErrUnsupportedTargetType)
	}
}

func TestBuffer_SetCType(t *testing.T) {
	b := Wrap(CDefault, make([]byte, 8), 8, make([]byte, 8))
	b.SetCType(CSBigInt)
	assert.Equal(t, 8, b.ElementSize())
	_, err := b.PutInt64(99)
	require.NoError(t, err)
	got, err := b.GetInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(99), got)
}
