package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ExtRecordHeaderLen is the size of one extension record header:
// ID u16 | Type u8 | Len u16, little endian.
const ExtRecordHeaderLen = 5

var (
	ErrShortExtHeader = errors.New("frame: short extension record header")
	ErrShortExtValue  = errors.New("frame: short extension record value")
	ErrExtType        = errors.New("frame: extension record type mismatch")
)

// Extension record IDs understood by this package. Unknown IDs are kept
// as-is by ParseExt.
const (
	ExtSchemaName  uint16 = 1
	ExtFingerprint uint16 = 2
	ExtSource      uint16 = 3
)

const (
	ExtTypeString uint8 = 1
	ExtTypeBytes  uint8 = 2
	ExtTypeU64    uint8 = 3
)

// ExtRecord is one typed entry of a frame header extension.
type ExtRecord struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func StringExt(id uint16, s string) ExtRecord {
	return ExtRecord{ID: id, Type: ExtTypeString, Value: []byte(s)}
}

func BytesExt(id uint16, b []byte) ExtRecord {
	return ExtRecord{ID: id, Type: ExtTypeBytes, Value: append([]byte(nil), b...)}
}

// AppendExt encodes records onto dst. Values longer than 65535 bytes are
// rejected.
func AppendExt(dst []byte, recs ...ExtRecord) ([]byte, error) {
	for _, r := range recs {
		if len(r.Value) > 0xffff {
			return nil, fmt.Errorf("%w: record %d is %d bytes", ErrExtTooLarge, r.ID, len(r.Value))
		}
		var hdr [ExtRecordHeaderLen]byte
		binary.LittleEndian.PutUint16(hdr[0:2], r.ID)
		hdr[2] = r.Type
		binary.LittleEndian.PutUint16(hdr[3:5], uint16(len(r.Value)))
		dst = append(dst, hdr[:]...)
		dst = append(dst, r.Value...)
	}
	return dst, nil
}

// ParseExt decodes every record of an extension block.
func ParseExt(ext []byte) ([]ExtRecord, error) {
	var out []ExtRecord
	i := 0
	for i < len(ext) {
		if len(ext)-i < ExtRecordHeaderLen {
			return nil, ErrShortExtHeader
		}
		id := binary.LittleEndian.Uint16(ext[i : i+2])
		typ := ext[i+2]
		n := int(binary.LittleEndian.Uint16(ext[i+3 : i+5]))
		i += ExtRecordHeaderLen
		if len(ext)-i < n {
			return nil, ErrShortExtValue
		}
		val := make([]byte, n)
		copy(val, ext[i:i+n])
		i += n
		out = append(out, ExtRecord{ID: id, Type: typ, Value: val})
	}
	return out, nil
}

// FindExt returns the first record with the given id.
func FindExt(recs []ExtRecord, id uint16) (ExtRecord, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return ExtRecord{}, false
}

func (r ExtRecord) Text() (string, error) {
	if r.Type != ExtTypeString {
		return "", fmt.Errorf("%w: record %d has type %d", ErrExtType, r.ID, r.Type)
	}
	return string(r.Value), nil
}

func (r ExtRecord) U64() (uint64, error) {
	if r.Type != ExtTypeU64 || len(r.Value) != 8 {
		return 0, fmt.Errorf("%w: record %d is not a u64", ErrExtType, r.ID)
	}
	return binary.LittleEndian.Uint64(r.Value), nil
}

func U64Ext(id uint16, v uint64) ExtRecord {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return ExtRecord{ID: id, Type: ExtTypeU64, Value: b}
}

// Records parses f.Ext.
func (f Frame) Records() ([]ExtRecord, error) { return ParseExt(f.Ext) }
