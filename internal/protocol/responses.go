package protocol

import "fmt"

// ResultKind tags the variant of a RESULT frame body.
type ResultKind int32

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)

// ColumnSpec describes one column of row metadata.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	TypeID   uint16
}

// RowsMetadata is the metadata preceding a RESULT/Rows body's row data.
type RowsMetadata struct {
	Flags       int32
	PagingState []byte
	Columns     []ColumnSpec
}

// ResultBody is the decoded payload of a RESULT frame, discriminated by Kind.
type ResultBody struct {
	Kind ResultKind

	// Kind == ResultRows
	RowsMeta RowsMetadata
	RowsData [][][]byte // rows of raw column value bytes

	// Kind == ResultSetKeyspace
	Keyspace string

	// Kind == ResultPrepared
	PreparedID   [16]byte
	PreparedMeta RowsMetadata
	ResultMeta   RowsMetadata

	// Kind == ResultSchemaChange
	SchemaChangeType   string
	SchemaChangeTarget string
	SchemaChangeKeyspace string
	SchemaChangeObject string
}

// ServerError is the decoded body of an ERROR frame. Additional carries the
// opcode-specific fields (consistency/received/blockfor for timeouts,
// unprepared id, function/arg types for function failures) verbatim.
type ServerError struct {
	Code       ErrorCode
	Message    string
	Additional map[string]any
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cql error %s: %s", e.Code, e.Message)
}

// ResponseBody is the decoded body of a response frame, discriminated by the
// frame's Opcode; exactly one field is meaningful per variant.
type ResponseBody struct {
	Opcode Opcode

	Supported    map[string][]string // OpSupported
	Result       *ResultBody         // OpResult
	Error        *ServerError        // OpError
	AuthChallenge []byte             // OpAuthChallenge
	// OpReady, OpAuthenticate, OpAuthSuccess, OpEvent carry no/Additional
	// payload beyond what's below.
	AuthenticatorClass string // OpAuthenticate
	AuthSuccessToken   []byte // OpAuthSuccess
	Event              *SchemaOrTopologyEvent
}

// SchemaOrTopologyEvent is the decoded body of an EVENT frame.
type SchemaOrTopologyEvent struct {
	Type    string
	Change  string
	Address string
}

// DecodeResponseBody decodes a raw (already decompressed) body according to
// the opcode from the frame header.
func DecodeResponseBody(opcode Opcode, body []byte) (ResponseBody, error) {
	out := ResponseBody{Opcode: opcode}
	switch opcode {
	case OpReady, OpAuthSuccess:
		if opcode == OpAuthSuccess {
			tok, _, rest, err := ReadBytes(body)
			if err == nil {
				out.AuthSuccessToken = tok
				_ = rest
			}
		}
		return out, nil
	case OpAuthenticate:
		name, _, err := ReadLongString(body)
		if err != nil {
			return out, err
		}
		out.AuthenticatorClass = name
		return out, nil
	case OpAuthChallenge:
		tok, _, _, err := ReadBytes(body)
		if err != nil {
			return out, err
		}
		out.AuthChallenge = tok
		return out, nil
	case OpSupported:
		m, _, err := ReadStringMultimap(body)
		if err != nil {
			return out, err
		}
		out.Supported = m
		return out, nil
	case OpError:
		se, err := decodeError(body)
		if err != nil {
			return out, err
		}
		out.Error = se
		return out, nil
	case OpResult:
		rb, err := decodeResult(body)
		if err != nil {
			return out, err
		}
		out.Result = &rb
		return out, nil
	case OpEvent:
		ev, err := decodeEvent(body)
		if err != nil {
			return out, err
		}
		out.Event = ev
		return out, nil
	default:
		return out, ErrUnknownOpcode
	}
}

func decodeError(body []byte) (*ServerError, error) {
	code, body, err := ReadInt(body)
	if err != nil {
		return nil, err
	}
	msg, body, err := ReadShortString(body)
	if err != nil {
		return nil, err
	}
	se := &ServerError{Code: ErrorCode(code), Message: msg, Additional: map[string]any{}}
	switch ErrorCode(code) {
	case ErrCodeUnavailable:
		cl, b2, err := ReadShort(body)
		if err != nil {
			return se, nil
		}
		required, b2, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		alive, _, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		se.Additional["consistency"] = Consistency(cl)
		se.Additional["required"] = required
		se.Additional["alive"] = alive
	case ErrCodeWriteTimeout:
		cl, b2, err := ReadShort(body)
		if err != nil {
			return se, nil
		}
		received, b2, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		blockfor, b2, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		writeType, _, err := ReadShortString(b2)
		if err != nil {
			return se, nil
		}
		se.Additional["consistency"] = Consistency(cl)
		se.Additional["received"] = received
		se.Additional["blockfor"] = blockfor
		se.Additional["write_type"] = writeType
	case ErrCodeReadTimeout, ErrCodeReadFailure:
		cl, b2, err := ReadShort(body)
		if err != nil {
			return se, nil
		}
		received, b2, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		blockfor, _, err := ReadInt(b2)
		if err != nil {
			return se, nil
		}
		se.Additional["consistency"] = Consistency(cl)
		se.Additional["received"] = received
		se.Additional["blockfor"] = blockfor
	case ErrCodeUnprepared:
		id, _, _, err := ReadBytes(body)
		if err != nil {
			return se, nil
		}
		var arr [16]byte
		copy(arr[:], id)
		se.Additional["unprepared_id"] = arr
	case ErrCodeFunctionFailure:
		ks, b2, err := ReadShortString(body)
		if err != nil {
			return se, nil
		}
		fn, b2, err := ReadShortString(b2)
		if err != nil {
			return se, nil
		}
		se.Additional["keyspace"] = ks
		se.Additional["function"] = fn
		_ = b2
	case ErrCodeAlreadyExists:
		ks, b2, err := ReadShortString(body)
		if err != nil {
			return se, nil
		}
		table, _, err := ReadShortString(b2)
		if err != nil {
			return se, nil
		}
		se.Additional["keyspace"] = ks
		se.Additional["table"] = table
	}
	return se, nil
}

func decodeResult(body []byte) (ResultBody, error) {
	kind, body, err := ReadInt(body)
	if err != nil {
		return ResultBody{}, err
	}
	rb := ResultBody{Kind: ResultKind(kind)}
	switch ResultKind(kind) {
	case ResultVoid:
		return rb, nil
	case ResultSetKeyspace:
		ks, _, err := ReadShortString(body)
		if err != nil {
			return rb, err
		}
		rb.Keyspace = ks
		return rb, nil
	case ResultRows:
		meta, rest, err := decodeRowsMetadata(body)
		if err != nil {
			return rb, err
		}
		rb.RowsMeta = meta
		count, rest, err := ReadInt(rest)
		if err != nil {
			return rb, err
		}
		rows := make([][][]byte, 0, count)
		for i := int32(0); i < count; i++ {
			row := make([][]byte, len(meta.Columns))
			for c := range meta.Columns {
				var data []byte
				data, _, rest, err = ReadBytes(rest)
				if err != nil {
					return rb, err
				}
				row[c] = data
			}
			rows = append(rows, row)
		}
		rb.RowsData = rows
		return rb, nil
	case ResultPrepared:
		id, _, rest, err := ReadBytes(body)
		if err != nil {
			return rb, err
		}
		copy(rb.PreparedID[:], id)
		meta, rest, err := decodeRowsMetadata(rest)
		if err != nil {
			return rb, err
		}
		rb.PreparedMeta = meta
		resMeta, _, err := decodeRowsMetadata(rest)
		if err != nil {
			// Result metadata is optional in some server versions; ignore
			// decode failure on the trailing section.
			return rb, nil
		}
		rb.ResultMeta = resMeta
		return rb, nil
	case ResultSchemaChange:
		typ, rest, err := ReadShortString(body)
		if err != nil {
			return rb, err
		}
		target, rest, err := ReadShortString(rest)
		if err != nil {
			return rb, err
		}
		ks, rest, err := ReadShortString(rest)
		if err != nil {
			return rb, err
		}
		rb.SchemaChangeType = typ
		rb.SchemaChangeTarget = target
		rb.SchemaChangeKeyspace = ks
		if target != "KEYSPACE" && len(rest) > 0 {
			obj, _, err := ReadShortString(rest)
			if err == nil {
				rb.SchemaChangeObject = obj
			}
		}
		return rb, nil
	default:
		return rb, ErrBodyMalformed
	}
}

func decodeRowsMetadata(body []byte) (RowsMetadata, []byte, error) {
	flags, body, err := ReadInt(body)
	if err != nil {
		return RowsMetadata{}, nil, err
	}
	colCount, body, err := ReadInt(body)
	if err != nil {
		return RowsMetadata{}, nil, err
	}
	meta := RowsMetadata{Flags: flags}
	const hasMorePages = 0x0002
	const noMetadata = 0x0004
	const globalTableSpec = 0x0001
	if flags&hasMorePages != 0 {
		ps, _, rest, err := ReadBytes(body)
		if err != nil {
			return meta, nil, err
		}
		meta.PagingState = ps
		body = rest
	}
	if flags&noMetadata != 0 {
		return meta, body, nil
	}
	var globalKS, globalTable string
	if flags&globalTableSpec != 0 {
		var err error
		globalKS, body, err = ReadShortString(body)
		if err != nil {
			return meta, nil, err
		}
		globalTable, body, err = ReadShortString(body)
		if err != nil {
			return meta, nil, err
		}
	}
	cols := make([]ColumnSpec, 0, colCount)
	for i := int32(0); i < colCount; i++ {
		spec := ColumnSpec{Keyspace: globalKS, Table: globalTable}
		if flags&globalTableSpec == 0 {
			var err error
			spec.Keyspace, body, err = ReadShortString(body)
			if err != nil {
				return meta, nil, err
			}
			spec.Table, body, err = ReadShortString(body)
			if err != nil {
				return meta, nil, err
			}
		}
		name, rest, err := ReadShortString(body)
		if err != nil {
			return meta, nil, err
		}
		typeID, rest, err := ReadShort(rest)
		if err != nil {
			return meta, nil, err
		}
		spec.Name = name
		spec.TypeID = typeID
		body = rest
		cols = append(cols, spec)
	}
	meta.Columns = cols
	return meta, body, nil
}

func decodeEvent(body []byte) (*SchemaOrTopologyEvent, error) {
	typ, body, err := ReadShortString(body)
	if err != nil {
		return nil, err
	}
	ev := &SchemaOrTopologyEvent{Type: typ}
	switch typ {
	case "TOPOLOGY_CHANGE", "STATUS_CHANGE":
		change, rest, err := ReadShortString(body)
		if err != nil {
			return ev, nil
		}
		ev.Change = change
		_ = rest
	case "SCHEMA_CHANGE":
		change, rest, err := ReadShortString(body)
		if err == nil {
			ev.Change = change
		}
		_ = rest
	}
	return ev, nil
}
