package protocol

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: RequestVersion, Flags: FlagTracing, StreamID: -5, Opcode: OpQuery, BodyLen: 42}
	buf := EncodeHeader(h)
	if len(buf) != HeaderLen {
		t.Fatalf("header length = %d, want %d", len(buf), HeaderLen)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("DecodeHeader(EncodeHeader(h)) = %+v, want %+v", got, h)
	}
}

func TestFrameIntegrity(t *testing.T) {
	body := []byte("hello world")
	frame, err := EncodeRequestFrame(7, OpQuery, body, Uncompressed{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != HeaderLen+len(body) {
		t.Fatalf("frame length = %d, want %d", len(frame), HeaderLen+len(body))
	}
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatal(err)
	}
	if int(h.BodyLen) != len(body) {
		t.Fatalf("BodyLen = %d, want %d", h.BodyLen, len(body))
	}
	if !bytes.Equal(frame[HeaderLen:], body) {
		t.Fatal("body mismatch")
	}
}

func TestQueryRoundTrip(t *testing.T) {
	ts := int64(1234567890)
	params := QueryParams{
		Consistency:      ConsistencyQuorum,
		PositionalValues: [][]byte{[]byte("Key 42"), EncodeInt32(42)},
		PageSize:         100,
		Timestamp:        &ts,
	}
	body := EncodeQuery("SELECT * FROM t WHERE k=?", params)

	stmt, rest, err := ReadLongString(body)
	if err != nil {
		t.Fatal(err)
	}
	if stmt != "SELECT * FROM t WHERE k=?" {
		t.Fatalf("statement = %q", stmt)
	}
	cl, rest, err := ReadShort(rest)
	if err != nil {
		t.Fatal(err)
	}
	if Consistency(cl) != ConsistencyQuorum {
		t.Fatalf("consistency = %d", cl)
	}
	flags := rest[0]
	rest = rest[1:]
	if flags&QueryFlagValues == 0 || flags&QueryFlagPageSize == 0 || flags&QueryFlagDefaultTimestamp == 0 {
		t.Fatalf("flags = %08b, missing expected bits", flags)
	}
	n, rest, err := ReadShort(rest)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("value count = %d, want 2", n)
	}
	v1, _, rest, err := ReadBytes(rest)
	if err != nil {
		t.Fatal(err)
	}
	if string(v1) != "Key 42" {
		t.Fatalf("v1 = %q", v1)
	}
	v2, _, rest, err := ReadBytes(rest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeInt32(v2)
	if err != nil || got != 42 {
		t.Fatalf("v2 = %d, err %v", got, err)
	}
	pageSize, rest, err := ReadInt(rest)
	if err != nil || pageSize != 100 {
		t.Fatalf("page size = %d, err %v", pageSize, err)
	}
	gotTS, err := DecodeInt64(rest)
	if err != nil || gotTS != ts {
		t.Fatalf("timestamp = %d, err %v", gotTS, err)
	}
}

func TestColumnCodecRoundTrip(t *testing.T) {
	if got, err := DecodeInt32(EncodeInt32(-12345)); err != nil || got != -12345 {
		t.Fatalf("int32 round trip: %d, %v", got, err)
	}
	if got, err := DecodeInt64(EncodeInt64(1 << 40)); err != nil || got != 1<<40 {
		t.Fatalf("int64 round trip: %d, %v", got, err)
	}
	if got, err := DecodeBool(EncodeBool(true)); err != nil || !got {
		t.Fatalf("bool round trip: %v, %v", got, err)
	}
	if got, err := DecodeString(EncodeString("hello")); err != nil || got != "hello" {
		t.Fatalf("string round trip: %q, %v", got, err)
	}
}

func TestListMapRoundTrip(t *testing.T) {
	elems := [][]byte{EncodeInt32(1), EncodeInt32(2), EncodeInt32(3)}
	enc, err := EncodeList(elems)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeList(enc)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec) != 3 {
		t.Fatalf("decoded %d elements, want 3", len(dec))
	}
	for i, e := range dec {
		v, _ := DecodeInt32(e)
		if v != int32(i+1) {
			t.Fatalf("element %d = %d", i, v)
		}
	}

	entries := []MapEntry{{Key: EncodeString("a"), Value: EncodeInt32(1)}}
	encM, err := EncodeMap(entries)
	if err != nil {
		t.Fatal(err)
	}
	decM, err := DecodeMap(encM)
	if err != nil {
		t.Fatal(err)
	}
	if len(decM) != 1 || string(decM[0].Key) != "a" {
		t.Fatalf("map round trip failed: %+v", decM)
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	body := WriteInt(nil, int32(ErrCodeUnprepared))
	body = WriteShortString(body, "Unprepared statement")
	var idVal [16]byte
	idVal[0] = 0xAB
	body = WriteBytes(body, idVal[:])

	resp, err := DecodeResponseBody(OpError, body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil {
		t.Fatal("expected Error body")
	}
	if resp.Error.Code != ErrCodeUnprepared {
		t.Fatalf("code = %v", resp.Error.Code)
	}
	id, ok := resp.Error.Additional["unprepared_id"].([16]byte)
	if !ok || id[0] != 0xAB {
		t.Fatalf("unprepared_id additional field missing or wrong: %+v", resp.Error.Additional)
	}
}

func TestDecodeVoidResult(t *testing.T) {
	body := WriteInt(nil, int32(ResultVoid))
	resp, err := DecodeResponseBody(OpResult, body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result == nil || resp.Result.Kind != ResultVoid {
		t.Fatalf("expected Void result, got %+v", resp.Result)
	}
}
