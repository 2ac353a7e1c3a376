package protocol

// EncodeRequestFrame serializes a full request frame: header plus body,
// compressing the body (and setting the compression flag) when comp is not
// Uncompressed. OPTIONS and STARTUP must be called with Uncompressed
// regardless of the negotiated algorithm, per §4.1.
func EncodeRequestFrame(streamID int16, opcode Opcode, body []byte, comp Compression, tracing bool) ([]byte, error) {
	flags := byte(0)
	wireBody := body
	if comp != nil {
		if _, isUncompressed := comp.(Uncompressed); !isUncompressed {
			compressed, err := comp.Compress(body)
			if err != nil {
				return nil, ErrCompression
			}
			wireBody = compressed
			flags |= comp.Flag()
		}
	}
	if tracing {
		flags |= FlagTracing
	}
	header := Header{
		Version:  RequestVersion,
		Flags:    flags,
		StreamID: streamID,
		Opcode:   opcode,
		BodyLen:  uint32(len(wireBody)),
	}
	out := EncodeHeader(header)
	return append(out, wireBody...), nil
}

// DecodeResponseFrame decodes a complete response frame (header bytes plus
// raw body bytes as read off the wire), decompressing the body first if the
// compression flag is set.
func DecodeResponseFrame(headerBytes, rawBody []byte, comp Compression) (Frame, error) {
	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return Frame{}, err
	}
	body := rawBody
	if header.Flags&FlagCompression != 0 {
		if comp == nil {
			return Frame{}, ErrCompression
		}
		decompressed, err := comp.Decompress(rawBody)
		if err != nil {
			return Frame{}, ErrCompression
		}
		body = decompressed
	}
	return Frame{Header: header, Body: body}, nil
}
