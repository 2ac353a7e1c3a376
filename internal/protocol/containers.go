package protocol

// EncodeList builds the column-value bytes for a CQL list/set: a
// <count:i32> followed by that many <len:i32><bytes> elements. The caller
// wraps the result with WriteBytes to produce the full bound value.
func EncodeList(elements [][]byte) ([]byte, error) {
	buf := make([]byte, 0, 4)
	buf = WriteInt(buf, int32(len(elements)))
	for _, e := range elements {
		if int64(len(e)) > int64(1)<<31-1 {
			return nil, ErrValueTooLarge
		}
		buf = WriteBytes(buf, e)
	}
	return buf, nil
}

// DecodeList parses a list/set column value produced by EncodeList.
func DecodeList(buf []byte) ([][]byte, error) {
	count, buf, err := ReadInt(buf)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, count)
	for i := int32(0); i < count; i++ {
		var data []byte
		var unset bool
		data, unset, buf, err = ReadBytes(buf)
		if err != nil {
			return nil, err
		}
		if unset {
			return nil, ErrBodyMalformed
		}
		out = append(out, data)
	}
	return out, nil
}

// MapEntry is one key/value pair of a CQL map column.
type MapEntry struct {
	Key   []byte
	Value []byte
}

// EncodeMap builds the column-value bytes for a CQL map: a <count:i32>
// followed by that many <key><value> value pairs.
func EncodeMap(entries []MapEntry) ([]byte, error) {
	buf := make([]byte, 0, 4)
	buf = WriteInt(buf, int32(len(entries)))
	for _, e := range entries {
		buf = WriteBytes(buf, e.Key)
		buf = WriteBytes(buf, e.Value)
	}
	return buf, nil
}

// DecodeMap parses a map column value produced by EncodeMap.
func DecodeMap(buf []byte) ([]MapEntry, error) {
	count, buf, err := ReadInt(buf)
	if err != nil {
		return nil, err
	}
	out := make([]MapEntry, 0, count)
	for i := int32(0); i < count; i++ {
		var k, v []byte
		var unset bool
		k, unset, buf, err = ReadBytes(buf)
		if err != nil {
			return nil, err
		}
		if unset {
			return nil, ErrBodyMalformed
		}
		v, unset, buf, err = ReadBytes(buf)
		if err != nil {
			return nil, err
		}
		if unset {
			return nil, ErrBodyMalformed
		}
		out = append(out, MapEntry{Key: k, Value: v})
	}
	return out, nil
}

// EncodeTuple builds the column-value bytes for a CQL tuple: each component
// is written back-to-back as a <len:i32><bytes> value, with no leading
// count (tuple arity is carried in the schema, not the wire value).
func EncodeTuple(components [][]byte) []byte {
	buf := make([]byte, 0)
	for _, c := range components {
		buf = WriteBytes(buf, c)
	}
	return buf
}

// DecodeTuple parses n components from a tuple column value.
func DecodeTuple(buf []byte, n int) ([][]byte, error) {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		data, _, rest, err := ReadBytes(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
		buf = rest
	}
	return out, nil
}

// EncodeList and EncodeMap above return only the inner <count><items> body;
// the <total_byte_size:i32> prefix required of the outermost container is
// supplied by whichever WriteBytes call binds the result as a value (list and
// map columns are always bound through a value slot), so no separate
// wrapping step is needed here.
