package wire

import (
	"encoding/binary"
	"errors"
)

// tlvWriter builds a sequence of field-number/length/value records. Field
// numbers are kept stable across the codebase (see the fieldXxx constants
// in frame.go) so encode/decode stays bit-reproducible across versions,
// the same guarantee the spec asks of the repository's protocol-buffer
// schema without requiring protoc here.
type tlvWriter struct {
	buf []byte
}

func newTLVWriter() *tlvWriter {
	return &tlvWriter{}
}

func (w *tlvWriter) putField(fieldNum uint8, v []byte) {
	var hdr [5]byte
	hdr[0] = fieldNum
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(v)))
	w.buf = append(w.buf, hdr[:]...)
	w.buf = append(w.buf, v...)
}

func (w *tlvWriter) putByte(fieldNum uint8, v uint8) {
	w.putField(fieldNum, []byte{v})
}

func (w *tlvWriter) putUint64(fieldNum uint8, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.putField(fieldNum, b[:])
}

func (w *tlvWriter) putInt64(fieldNum uint8, v int64) {
	w.putUint64(fieldNum, uint64(v))
}

func (w *tlvWriter) putString(fieldNum uint8, v string) {
	w.putField(fieldNum, []byte(v))
}

func (w *tlvWriter) putBytes(fieldNum uint8, v []byte) {
	w.putField(fieldNum, v)
}

func (w *tlvWriter) bytes() []byte {
	return w.buf
}

// tlvFields is the parsed result of a TLV body: field number to raw value.
type tlvFields map[uint8][]byte

var errTruncatedTLV = errors.New("wire: truncated tlv field")

func parseTLV(body []byte) (tlvFields, error) {
	fields := make(tlvFields)
	for len(body) > 0 {
		if len(body) < 5 {
			return nil, errTruncatedTLV
		}
		fieldNum := body[0]
		length := binary.BigEndian.Uint32(body[1:5])
		body = body[5:]
		if uint32(len(body)) < length {
			return nil, errTruncatedTLV
		}
		fields[fieldNum] = body[:length]
		body = body[length:]
	}
	return fields, nil
}

func (f tlvFields) byteOr(fieldNum uint8, def uint8) uint8 {
	v, ok := f[fieldNum]
	if !ok || len(v) < 1 {
		return def
	}
	return v[0]
}

func (f tlvFields) uint64Or(fieldNum uint8, def uint64) uint64 {
	v, ok := f[fieldNum]
	if !ok || len(v) < 8 {
		return def
	}
	return binary.BigEndian.Uint64(v)
}

func (f tlvFields) int64Or(fieldNum uint8, def int64) int64 {
	return int64(f.uint64Or(fieldNum, uint64(def)))
}

func (f tlvFields) stringOr(fieldNum uint8, def string) string {
	v, ok := f[fieldNum]
	if !ok {
		return def
	}
	return string(v)
}

func (f tlvFields) bytesOr(fieldNum uint8, def []byte) []byte {
	v, ok := f[fieldNum]
	if !ok {
		return def
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
