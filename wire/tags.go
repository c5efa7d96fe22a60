// Package wire encodes and decodes the tagged little-endian field stream
// that carries result rows.
//
// Every field starts with a one byte Tag. Fixed width scalars follow
// directly; strings, binaries and intervals carry an int32 length prefix;
// composites (array, row, time series) carry an int32 payload length and
// an int32 element count followed by their tagged children. The payload
// length lets a reader skip a field without decoding it.
package wire

import (
	"errors"
	"fmt"

	"github.com/ethanyzhang/tsodbc/utils"
)

// Tag is the type tag leading every field.
type Tag uint8

const (
	TagInt8       Tag = 1
	TagInt16      Tag = 2
	TagInt32      Tag = 3
	TagInt64      Tag = 4
	TagFloat32    Tag = 5
	TagFloat64    Tag = 6
	TagBool       Tag = 8
	TagString     Tag = 9
	TagGuid       Tag = 10
	TagDate       Tag = 11
	TagBinary     Tag = 12
	TagDecimal    Tag = 30
	TagTimestamp  Tag = 33
	TagTime       Tag = 36
	TagUint8      Tag = 40
	TagUint16     Tag = 41
	TagUint32     Tag = 42
	TagUint64     Tag = 43
	TagArray      Tag = 50
	TagRow        Tag = 51
	TagTimeSeries Tag = 52
	TagInterval   Tag = 60
	TagNull       Tag = 101
)

var tagNames = utils.NewBiMap(map[Tag]string{
	TagInt8:       "INT8",
	TagInt16:      "INT16",
	TagInt32:      "INT32",
	TagInt64:      "INT64",
	TagFloat32:    "FLOAT32",
	TagFloat64:    "FLOAT64",
	TagBool:       "BOOL",
	TagString:     "STRING",
	TagGuid:       "GUID",
	TagDate:       "DATE",
	TagBinary:     "BINARY",
	TagDecimal:    "DECIMAL",
	TagTimestamp:  "TIMESTAMP",
	TagTime:       "TIME",
	TagUint8:      "UINT8",
	TagUint16:     "UINT16",
	TagUint32:     "UINT32",
	TagUint64:     "UINT64",
	TagArray:      "ARRAY",
	TagRow:        "ROW",
	TagTimeSeries: "TIMESERIES",
	TagInterval:   "INTERVAL",
	TagNull:       "NULL",
})

func (t Tag) String() string {
	if name, ok := tagNames.Lookup(t); ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// ParseTag returns the tag with the given name, e.g. "TIMESTAMP".
func ParseTag(name string) (Tag, error) {
	if t, ok := tagNames.RLookup(name); ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTypeTag, name)
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	_, ok := tagNames.Lookup(t)
	return ok
}

// fixedSize returns the payload size of fixed width tags, or -1.
func (t Tag) fixedSize() int {
	switch t {
	case TagNull:
		return 0
	case TagInt8, TagUint8, TagBool:
		return 1
	case TagInt16, TagUint16:
		return 2
	case TagInt32, TagUint32, TagFloat32:
		return 4
	case TagInt64, TagUint64, TagFloat64, TagDate, TagTime:
		return 8
	case TagTimestamp:
		return 12
	case TagGuid:
		return 16
	}
	return -1
}

// IsComposite reports whether fields with tag t contain tagged children.
func (t Tag) IsComposite() bool {
	return t == TagArray || t == TagRow || t == TagTimeSeries
}

var (
	ErrUnknownTypeTag  = errors.New("wire: unknown type tag")
	ErrTruncatedStream = errors.New("wire: truncated stream")
	ErrMalformedField  = errors.New("wire: malformed field")
	ErrNoSuchColumn    = errors.New("wire: column index out of range")
)
