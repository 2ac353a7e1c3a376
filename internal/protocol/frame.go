package protocol

import (
	"encoding/binary"
)

// Version bytes. 0x04 marks a request frame, 0x84 marks a response frame
// (the high bit distinguishes direction per CQL v4).
const (
	RequestVersion  byte = 0x04
	ResponseVersion byte = 0x84
)

// Flags occupy the second header byte.
const (
	FlagCompression byte = 0x01
	FlagTracing     byte = 0x02
	FlagCustomPay   byte = 0x04
	FlagWarning     byte = 0x08
)

// Opcode identifies the frame body variant.
type Opcode byte

const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpEvent        Opcode = 0x0C
	OpBatch        Opcode = 0x0D
	OpAuthChallenge Opcode = 0x0E
	OpAuthResponse Opcode = 0x0F
	OpAuthSuccess  Opcode = 0x10
)

// HeaderLen is the fixed size of every CQL v4 frame header.
const HeaderLen = 9

// Header is the fixed 9-byte frame header: version, flags, a 16-bit signed
// stream id, opcode, and a big-endian 32-bit body length.
type Header struct {
	Version  byte
	Flags    byte
	StreamID int16
	Opcode   Opcode
	BodyLen  uint32
}

// EncodeHeader writes h into a fresh 9-byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Version
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.StreamID))
	buf[4] = byte(h.Opcode)
	binary.BigEndian.PutUint32(buf[5:9], h.BodyLen)
	return buf
}

// DecodeHeader parses the first 9 bytes of buf into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrHeaderTooSmall
	}
	return Header{
		Version:  buf[0],
		Flags:    buf[1],
		StreamID: int16(binary.BigEndian.Uint16(buf[2:4])),
		Opcode:   Opcode(buf[4]),
		BodyLen:  binary.BigEndian.Uint32(buf[5:9]),
	}, nil
}

// SetStreamID overwrites bytes 2-3 of an already-encoded frame (header +
// body) in place. This is how the reporter stamps a stream id into a
// pre-encoded request without re-serializing the whole frame.
func SetStreamID(frame []byte, streamID int16) {
	binary.BigEndian.PutUint16(frame[2:4], uint16(streamID))
}

// Frame is a fully decoded frame: header plus the raw (decompressed) body
// bytes. Body-variant decoding happens one layer up, keyed by Header.Opcode.
type Frame struct {
	Header Header
	Body   []byte
}
