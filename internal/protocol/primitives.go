package protocol

import (
	"encoding/binary"
	"math"
)

// Sentinels for the [len:i32][bytes] value encoding.
const (
	valueNull  int32 = -1
	valueUnset int32 = -2
)

// WriteShortString appends a <len:u16><utf8 bytes> string.
func WriteShortString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// ReadShortString reads a <len:u16><utf8 bytes> string from buf, returning
// the value and the remaining unread slice.
func ReadShortString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrBodyMalformed
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, ErrBodyMalformed
	}
	return string(buf[:n]), buf[n:], nil
}

// WriteLongString appends a <len:i32><utf8 bytes> string.
func WriteLongString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ReadLongString reads a <len:i32><utf8 bytes> string.
func ReadLongString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, ErrBodyMalformed
	}
	n := int(int32(binary.BigEndian.Uint32(buf[0:4])))
	buf = buf[4:]
	if n < 0 || len(buf) < n {
		return "", nil, ErrBodyMalformed
	}
	return string(buf[:n]), buf[n:], nil
}

// WriteBytes appends a value: <len:i32><bytes>, with NULL (-1) when data is
// nil and UNSET (-2) reserved for WriteUnset.
func WriteBytes(buf []byte, data []byte) []byte {
	if data == nil {
		return WriteInt(buf, valueNull)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// WriteUnset appends the UNSET value sentinel (no following bytes).
func WriteUnset(buf []byte) []byte {
	return WriteInt(buf, valueUnset)
}

// ReadBytes reads a value, returning nil for NULL, and (nil, true) via the
// unset flag for UNSET.
func ReadBytes(buf []byte) (data []byte, unset bool, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, false, nil, ErrBodyMalformed
	}
	n := int32(binary.BigEndian.Uint32(buf[0:4]))
	buf = buf[4:]
	switch {
	case n == valueNull:
		return nil, false, buf, nil
	case n == valueUnset:
		return nil, true, buf, nil
	case n < 0:
		return nil, false, nil, ErrBodyMalformed
	}
	if len(buf) < int(n) {
		return nil, false, nil, ErrBodyMalformed
	}
	return buf[:n], false, buf[n:], nil
}

// WriteInt appends a plain big-endian i32 (used for counts, not values).
func WriteInt(buf []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(v))
}

// ReadInt reads a plain big-endian i32.
func ReadInt(buf []byte) (int32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrBodyMalformed
	}
	return int32(binary.BigEndian.Uint32(buf[0:4])), buf[4:], nil
}

// WriteShort appends a plain big-endian u16 count.
func WriteShort(buf []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(buf, v)
}

// ReadShort reads a plain big-endian u16.
func ReadShort(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, ErrBodyMalformed
	}
	return binary.BigEndian.Uint16(buf[0:2]), buf[2:], nil
}

// WriteStringMap appends a <count:u16>(<key><value>)* string multimap-ish
// map used by STARTUP options.
func WriteStringMap(buf []byte, m map[string]string) []byte {
	buf = WriteShort(buf, uint16(len(m)))
	for k, v := range m {
		buf = WriteShortString(buf, k)
		buf = WriteShortString(buf, v)
	}
	return buf
}

// ReadStringMultimap reads a <count:u16>(<key><count:u16><value>*)* map,
// as used by SUPPORTED responses.
func ReadStringMultimap(buf []byte) (map[string][]string, []byte, error) {
	count, buf, err := ReadShort(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string][]string, count)
	for i := 0; i < int(count); i++ {
		var key string
		key, buf, err = ReadShortString(buf)
		if err != nil {
			return nil, nil, err
		}
		var n uint16
		n, buf, err = ReadShort(buf)
		if err != nil {
			return nil, nil, err
		}
		vals := make([]string, n)
		for j := range vals {
			vals[j], buf, err = ReadShortString(buf)
			if err != nil {
				return nil, nil, err
			}
		}
		out[key] = vals
	}
	return out, buf, nil
}

// Column encoders. Each returns the raw bytes suitable for wrapping with
// WriteBytes, i.e. the value payload without its own length prefix.

func EncodeInt8(v int8) []byte   { return []byte{byte(v)} }
func EncodeInt16(v int16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, uint16(v)); return b }
func EncodeInt32(v int32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, uint32(v)); return b }
func EncodeInt64(v int64) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, uint64(v)); return b }

func EncodeUint8(v uint8) []byte   { return []byte{v} }
func EncodeUint16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func EncodeUint32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }
func EncodeUint64(v uint64) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, v); return b }

// EncodeInt128 encodes a 16-byte big-endian two's-complement value from
// its high and low 64-bit halves (used for `varint`/128-bit column
// representations).
func EncodeInt128(hi, lo uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], hi)
	binary.BigEndian.PutUint64(b[8:16], lo)
	return b
}

func EncodeFloat32(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func EncodeFloat64(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, ErrBodyMalformed
	}
	return b[0] != 0, nil
}

func EncodeString(v string) []byte { return []byte(v) }
func EncodeBlob(v []byte) []byte   { return v }

// EncodeIP encodes a 4-byte IPv4 or 16-byte IPv6 address verbatim.
func EncodeIP(v []byte) ([]byte, error) {
	if len(v) != 4 && len(v) != 16 {
		return nil, ErrUnsupportedValue
	}
	return v, nil
}

// EncodeDate encodes a date as days since the epoch, offset by 2^31 per the
// CQL `date` wire representation.
func EncodeDate(daysSinceEpoch int32) []byte {
	return EncodeUint32(uint32(int64(daysSinceEpoch) + (1 << 31)))
}

// EncodeTime encodes nanoseconds since midnight (CQL `time`).
func EncodeTime(nanosSinceMidnight int64) []byte {
	return EncodeInt64(nanosSinceMidnight)
}

// EncodeTimestamp encodes milliseconds since the epoch (CQL `timestamp`).
func EncodeTimestamp(millisSinceEpoch int64) []byte {
	return EncodeInt64(millisSinceEpoch)
}

// DecodeInt32 decodes a big-endian signed 32-bit column value.
func DecodeInt32(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, ErrBodyMalformed
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// DecodeInt64 decodes a big-endian signed 64-bit column value.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, ErrBodyMalformed
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// DecodeString decodes a UTF-8 blob column value verbatim.
func DecodeString(b []byte) (string, error) { return string(b), nil }
