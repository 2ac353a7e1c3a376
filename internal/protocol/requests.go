package protocol

// EncodeStartup builds a STARTUP frame body from the option map, always
// including CQL_VERSION and optionally COMPRESSION.
func EncodeStartup(options map[string]string) []byte {
	return WriteStringMap(nil, options)
}

// EncodeOptions builds an (empty) OPTIONS frame body.
func EncodeOptions() []byte { return nil }

// EncodeAuthResponse wraps an opaque SASL token as an AUTH_RESPONSE body.
func EncodeAuthResponse(token []byte) []byte {
	return WriteBytes(nil, token)
}

// AllowAllAuthToken is the fixed unit token sent for the "allow all"
// authenticator: a single zero byte wrapped as a value.
func AllowAllAuthToken() []byte {
	return []byte{0}
}

// PasswordAuthToken builds the SASL PLAIN-style token `<0>user<0>pass`
// expected by PasswordAuthenticator.
func PasswordAuthToken(user, pass string) []byte {
	buf := make([]byte, 0, len(user)+len(pass)+2)
	buf = append(buf, 0)
	buf = append(buf, user...)
	buf = append(buf, 0)
	buf = append(buf, pass...)
	return buf
}

// EncodeQuery builds a QUERY frame body: <statement:long string><params>.
func EncodeQuery(statement string, params QueryParams) []byte {
	buf := WriteLongString(nil, statement)
	return params.Encode(buf)
}

// EncodePrepare builds a PREPARE frame body: <statement:long string>.
func EncodePrepare(statement string) []byte {
	return WriteLongString(nil, statement)
}

// EncodeExecute builds an EXECUTE frame body:
// <id:[short bytes]><params>, where id is the 16-byte prepared statement id.
func EncodeExecute(preparedID [16]byte, params QueryParams) []byte {
	buf := WriteShort(nil, uint16(len(preparedID)))
	buf = append(buf, preparedID[:]...)
	return params.Encode(buf)
}

// BatchKind selects LOGGED, UNLOGGED or COUNTER batch semantics.
type BatchKind byte

const (
	BatchLogged   BatchKind = 0
	BatchUnlogged BatchKind = 1
	BatchCounter  BatchKind = 2
)

// BatchStatementKind distinguishes a batch member carrying a raw query
// string from one carrying a prepared statement id.
type BatchStatementKind byte

const (
	BatchStmtQuery    BatchStatementKind = 0
	BatchStmtPrepared BatchStatementKind = 1
)

// BatchStatement is one member of a BATCH request.
type BatchStatement struct {
	Kind       BatchStatementKind
	Query      string   // set when Kind == BatchStmtQuery
	PreparedID [16]byte // set when Kind == BatchStmtPrepared
	Values     [][]byte
}

// EncodeBatch builds a BATCH frame body:
// <kind:u8><n:u16>(<stmt_kind:u8><string_or_id><n_values:u16><value>*)*
// <consistency:u16><flags:u8>[<serial_consistency>][<timestamp>].
func EncodeBatch(kind BatchKind, statements []BatchStatement, consistency Consistency, serial Consistency, timestamp *int64) []byte {
	buf := []byte{byte(kind)}
	buf = WriteShort(buf, uint16(len(statements)))
	for _, s := range statements {
		buf = append(buf, byte(s.Kind))
		if s.Kind == BatchStmtQuery {
			buf = WriteLongString(buf, s.Query)
		} else {
			buf = WriteBytes(buf, s.PreparedID[:])
		}
		buf = WriteShort(buf, uint16(len(s.Values)))
		for _, v := range s.Values {
			buf = WriteBytes(buf, v)
		}
	}
	buf = WriteShort(buf, uint16(consistency))
	var flags byte
	if serial != ConsistencyAny {
		flags |= QueryFlagSerialConsistency
	}
	if timestamp != nil {
		flags |= QueryFlagDefaultTimestamp
	}
	buf = append(buf, flags)
	if flags&QueryFlagSerialConsistency != 0 {
		buf = WriteShort(buf, uint16(serial))
	}
	if flags&QueryFlagDefaultTimestamp != 0 {
		buf = append(buf, EncodeInt64(*timestamp)...)
	}
	return buf
}

// EncodeRegister builds a REGISTER frame body from the requested event
// type names (e.g. "TOPOLOGY_CHANGE", "STATUS_CHANGE", "SCHEMA_CHANGE").
func EncodeRegister(eventTypes []string) []byte {
	buf := WriteShort(nil, uint16(len(eventTypes)))
	for _, t := range eventTypes {
		buf = WriteShortString(buf, t)
	}
	return buf
}
