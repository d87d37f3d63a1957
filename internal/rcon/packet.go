package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types per the Source RCON spec.
const (
	typeAuth         int32 = 3
	typeAuthResponse int32 = 2
	typeExecCommand  int32 = 2
	typeResponse     int32 = 0
)

const (
	// packetHeader is id + type + two trailing NULs, excluded from body length.
	packetHeader = 10
	// maxPayload bounds a single packet body (4096 per spec, plus slack).
	maxPayload = 4106
)

// ProtocolError reports a malformed or unexpected frame.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "rcon: protocol error: " + e.Reason }

func writePacket(w io.Writer, id, typ int32, body string) error {
	size := int32(len(body) + packetHeader)
	buf := make([]byte, 0, size+4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typ))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)
	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (id, typ int32, body string, err error) {
	var sizeBuf [4]byte
	if _, err = io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, 0, "", err
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < packetHeader || size > maxPayload+packetHeader {
		return 0, 0, "", &ProtocolError{Reason: fmt.Sprintf("frame size %d out of range", size)}
	}

	payload := make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, "", err
	}
	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	typ = int32(binary.LittleEndian.Uint32(payload[4:8]))
	if payload[size-2] != 0 || payload[size-1] != 0 {
		return 0, 0, "", &ProtocolError{Reason: "missing frame terminator"}
	}
	return id, typ, string(payload[8 : size-2]), nil
}
