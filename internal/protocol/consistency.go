package protocol

// Consistency is the CQL consistency level, encoded as a big-endian u16.
type Consistency uint16

const (
	ConsistencyAny         Consistency = 0x0000
	ConsistencyOne         Consistency = 0x0001
	ConsistencyTwo         Consistency = 0x0002
	ConsistencyThree       Consistency = 0x0003
	ConsistencyQuorum      Consistency = 0x0004
	ConsistencyAll         Consistency = 0x0005
	ConsistencyLocalQuorum Consistency = 0x0006
	ConsistencyEachQuorum  Consistency = 0x0007
	ConsistencySerial      Consistency = 0x0008
	ConsistencyLocalSerial Consistency = 0x0009
	ConsistencyLocalOne    Consistency = 0x000A
)

// Query/Execute/Batch flag bits (CQL v4 query flags byte).
const (
	QueryFlagValues             byte = 0x01
	QueryFlagSkipMetadata        byte = 0x02
	QueryFlagPageSize            byte = 0x04
	QueryFlagPagingState          byte = 0x08
	QueryFlagSerialConsistency    byte = 0x10
	QueryFlagDefaultTimestamp    byte = 0x20
	QueryFlagNamedValues        byte = 0x40
)

// QueryParams carries everything bindable to a Query/Execute/Batch
// statement: consistency, flags-driven optionals, and the bound values.
type QueryParams struct {
	Consistency       Consistency
	PositionalValues  [][]byte // mutually exclusive with NamedValues
	NamedValues       map[string][]byte
	SkipMetadata      bool
	PageSize          int32 // 0 means "not set"
	PagingState       []byte
	SerialConsistency Consistency // 0 (ConsistencyAny) means "not set"
	Timestamp         *int64
}

func (p QueryParams) flags() byte {
	var f byte
	if len(p.PositionalValues) > 0 || len(p.NamedValues) > 0 {
		f |= QueryFlagValues
	}
	if len(p.NamedValues) > 0 {
		f |= QueryFlagNamedValues
	}
	if p.SkipMetadata {
		f |= QueryFlagSkipMetadata
	}
	if p.PageSize > 0 {
		f |= QueryFlagPageSize
	}
	if len(p.PagingState) > 0 {
		f |= QueryFlagPagingState
	}
	if p.SerialConsistency != ConsistencyAny {
		f |= QueryFlagSerialConsistency
	}
	if p.Timestamp != nil {
		f |= QueryFlagDefaultTimestamp
	}
	return f
}

// Encode appends the wire representation of p: <consistency:u16><flags:u8>
// then each optional field gated by its flag bit, in protocol order.
func (p QueryParams) Encode(buf []byte) []byte {
	buf = WriteShort(buf, uint16(p.Consistency))
	flags := p.flags()
	buf = append(buf, flags)

	if flags&QueryFlagValues != 0 {
		if flags&QueryFlagNamedValues != 0 {
			buf = WriteShort(buf, uint16(len(p.NamedValues)))
			for name, v := range p.NamedValues {
				buf = WriteShortString(buf, name)
				buf = WriteBytes(buf, v)
			}
		} else {
			buf = WriteShort(buf, uint16(len(p.PositionalValues)))
			for _, v := range p.PositionalValues {
				buf = WriteBytes(buf, v)
			}
		}
	}
	if flags&QueryFlagPageSize != 0 {
		buf = WriteInt(buf, p.PageSize)
	}
	if flags&QueryFlagPagingState != 0 {
		buf = WriteBytes(buf, p.PagingState)
	}
	if flags&QueryFlagSerialConsistency != 0 {
		buf = WriteShort(buf, uint16(p.SerialConsistency))
	}
	if flags&QueryFlagDefaultTimestamp != 0 {
		buf = append(buf, EncodeInt64(*p.Timestamp)...)
	}
	return buf
}
