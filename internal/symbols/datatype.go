package symbols

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// DataType is the ADS data type id of a symbol's elements.
type DataType uint32

const (
	DataTypeVoid   DataType = 0
	DataTypeInt16  DataType = 2
	DataTypeInt32  DataType = 3
	DataTypeReal32 DataType = 4
	DataTypeReal64 DataType = 5
	DataTypeInt8   DataType = 16
	DataTypeUInt8  DataType = 17
	DataTypeUInt16 DataType = 18
	DataTypeUInt32 DataType = 19
	DataTypeInt64  DataType = 20
	DataTypeUInt64 DataType = 21
	DataTypeString DataType = 30
	DataTypeBit    DataType = 33
)

func (dt DataType) String() string {
	switch dt {
	case DataTypeBit:
		return "BOOL"
	case DataTypeInt8:
		return "SINT"
	case DataTypeUInt8:
		return "USINT"
	case DataTypeInt16:
		return "INT"
	case DataTypeUInt16:
		return "UINT"
	case DataTypeInt32:
		return "DINT"
	case DataTypeUInt32:
		return "UDINT"
	case DataTypeInt64:
		return "LINT"
	case DataTypeUInt64:
		return "ULINT"
	case DataTypeReal32:
		return "REAL"
	case DataTypeReal64:
		return "LREAL"
	case DataTypeString:
		return "STRING"
	default:
		return fmt.Sprintf("TYPE_%d", uint32(dt))
	}
}

// Valid reports whether dt is one of the supported element types.
func (dt DataType) Valid() bool {
	_, ok := codecs[dt]
	return ok
}

// ElementSize is the byte size of one element, zero for unsupported types.
func (dt DataType) ElementSize() uint32 {
	return codecs[dt].size
}

type fixed interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// codec converts between the little-endian memory image of n elements and a
// Go value: T for a scalar, []T for an array.
type codec struct {
	size   uint32
	decode func(b []byte, n uint32) any
	encode func(v any, n uint32) ([]byte, bool)
}

var codecs = map[DataType]codec{
	DataTypeBit:    fixedCodec[bool](),
	DataTypeInt8:   fixedCodec[int8](),
	DataTypeUInt8:  fixedCodec[uint8](),
	DataTypeInt16:  fixedCodec[int16](),
	DataTypeUInt16: fixedCodec[uint16](),
	DataTypeInt32:  fixedCodec[int32](),
	DataTypeUInt32: fixedCodec[uint32](),
	DataTypeInt64:  fixedCodec[int64](),
	DataTypeUInt64: fixedCodec[uint64](),
	DataTypeReal32: fixedCodec[float32](),
	DataTypeReal64: fixedCodec[float64](),
	DataTypeString: {size: 1, decode: decodeString, encode: encodeString},
}

func fixedCodec[T fixed]() codec {
	var zero T
	return codec{
		size:   uint32(binary.Size(zero)),
		decode: decodeFixed[T],
		encode: encodeFixed[T],
	}
}

func decodeFixed[T fixed](b []byte, n uint32) any {
	vals := make([]T, n)
	// b is always exactly n elements long
	_, _ = binary.Decode(b, binary.LittleEndian, vals)
	if n == 1 {
		return vals[0]
	}
	return vals
}

func encodeFixed[T fixed](v any, n uint32) ([]byte, bool) {
	var vals []T
	switch x := v.(type) {
	case []T:
		if uint32(len(x)) != n {
			return nil, false
		}
		vals = x
	case []any:
		if uint32(len(x)) != n {
			return nil, false
		}
		vals = make([]T, n)
		for i, e := range x {
			c, ok := convert[T](e)
			if !ok {
				return nil, false
			}
			vals[i] = c
		}
	default:
		if n != 1 {
			return nil, false
		}
		c, ok := convert[T](v)
		if !ok {
			return nil, false
		}
		vals = []T{c}
	}

	var zero T
	buf := make([]byte, int(n)*binary.Size(zero))
	if _, err := binary.Encode(buf, binary.LittleEndian, vals); err != nil {
		return nil, false
	}
	return buf, true
}

// convert accepts any Go number for a numeric T as long as it is
// representable without overflow or truncation.
func convert[T fixed](v any) (T, bool) {
	var zero T
	if t, ok := v.(T); ok {
		return t, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return zero, false
	}
	out := reflect.New(reflect.TypeOf(zero)).Elem()

	switch {
	case rv.Kind() == reflect.Bool:
		if out.Kind() != reflect.Bool {
			return zero, false
		}
		out.SetBool(rv.Bool())
	case rv.CanInt():
		i := rv.Int()
		switch {
		case out.CanInt():
			if out.OverflowInt(i) {
				return zero, false
			}
			out.SetInt(i)
		case out.CanUint():
			if i < 0 || out.OverflowUint(uint64(i)) {
				return zero, false
			}
			out.SetUint(uint64(i))
		case out.CanFloat():
			out.SetFloat(float64(i))
		default:
			return zero, false
		}
	case rv.CanUint():
		u := rv.Uint()
		switch {
		case out.CanInt():
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return zero, false
			}
			out.SetInt(int64(u))
		case out.CanUint():
			if out.OverflowUint(u) {
				return zero, false
			}
			out.SetUint(u)
		case out.CanFloat():
			out.SetFloat(float64(u))
		default:
			return zero, false
		}
	case rv.CanFloat():
		f := rv.Float()
		switch {
		case out.CanFloat():
			if out.OverflowFloat(f) {
				return zero, false
			}
			out.SetFloat(f)
		case out.CanInt():
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return zero, false
			}
			out.SetInt(int64(f))
		case out.CanUint():
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return zero, false
			}
			out.SetUint(uint64(f))
		default:
			return zero, false
		}
	default:
		return zero, false
	}
	return out.Interface().(T), true
}

// String symbols read as their full fixed-capacity byte image.
func decodeString(b []byte, n uint32) any {
	return append([]byte(nil), b...)
}

// encodeString zero pads a string up to the capacity n. Raw images never get
// here; Symbol.Encode stores them only at full size.
func encodeString(v any, n uint32) ([]byte, bool) {
	x, ok := v.(string)
	if !ok {
		return nil, false
	}
	src := []byte(x)
	if uint32(len(src)) > n {
		return nil, false
	}
	buf := make([]byte, n)
	copy(buf, src)
	return buf, true
}

// ParseValue parses the text form of a value for a symbol of type dt with n
// elements. Arrays are comma separated. Strings are taken verbatim.
func ParseValue(dt DataType, n uint32, text string) (any, error) {
	if dt == DataTypeString {
		return text, nil
	}
	if !dt.Valid() {
		return nil, fmt.Errorf("symbols: cannot parse values of %s", dt)
	}

	fields := []string{text}
	if n > 1 {
		fields = strings.Split(text, ",")
		if uint32(len(fields)) != n {
			return nil, fmt.Errorf("symbols: expected %d values, got %d", n, len(fields))
		}
	}

	vals := make([]any, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		var (
			v   any
			err error
		)
		switch dt {
		case DataTypeBit:
			v, err = strconv.ParseBool(f)
		case DataTypeReal32, DataTypeReal64:
			v, err = strconv.ParseFloat(f, 64)
		case DataTypeUInt8, DataTypeUInt16, DataTypeUInt32, DataTypeUInt64:
			v, err = strconv.ParseUint(f, 0, 64)
		default:
			v, err = strconv.ParseInt(f, 0, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("symbols: parse %s value %q: %w", dt, f, err)
		}
		vals[i] = v
	}
	if n == 1 {
		return vals[0], nil
	}
	return vals, nil
}
