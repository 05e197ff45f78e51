package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x31575753 // "SWW1" on the wire
	Version        uint16 = 1
	FixedHeaderLen uint16 = 32

	// FlagChanges marks a payload that is a view change stream rather than
	// a full pack.
	FlagChanges uint32 = 0x01
	FlagLZ4     uint32 = 0x02
	FlagZstd    uint32 = 0x04

	compressionFlags = FlagLZ4 | FlagZstd
)

var (
	ErrShortHeader       = errors.New("frame: short fixed header")
	ErrBadMagic          = errors.New("frame: bad magic")
	ErrBadVersion        = errors.New("frame: unsupported version")
	ErrHeaderLenTooSmall = errors.New("frame: header_len smaller than fixed header")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
	ErrExtTooLarge       = errors.New("frame: header extension too large")
	ErrBadCompression    = errors.New("frame: bad compression")
)

// Header is the fixed wire header. All fields are little endian.
//
//	Magic u32 | Version u16 | HeaderLen u16 | MessageID u64 |
//	SchemaID u32 | Flags u32 | PayloadLen u32 | RawLen u32
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	MessageID  uint64
	SchemaID   uint32
	Flags      uint32
	PayloadLen uint32
	// RawLen is the payload length before compression.
	RawLen uint32
}

func (h Header) IsChanges() bool { return h.Flags&FlagChanges != 0 }

// Frame is one complete wire message. Payload is always the uncompressed
// schema payload; compression is applied and removed by WriteFrame and
// ReadFrame.
type Frame struct {
	Header  Header
	Ext     []byte
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxExtBytes     uint32
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxExtBytes:     4 * 1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// Options configures WriteFrame.
type Options struct {
	Limits      Limits
	Compression Compression
}

func DefaultOptions() Options {
	return Options{Limits: DefaultLimits()}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: %#08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}

	extLen := uint32(h.HeaderLen - FixedHeaderLen)
	if extLen > limits.MaxExtBytes {
		return Frame{}, ErrExtTooLarge
	}
	if h.PayloadLen > limits.MaxPayloadBytes || h.RawLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	ext := make([]byte, extLen)
	if extLen > 0 {
		if _, err := io.ReadFull(r, ext); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	if payload, err = decompress(payload, h); err != nil {
		return Frame{}, err
	}

	return Frame{Header: h, Ext: ext, Payload: payload}, nil
}

// WriteFrame fills in HeaderLen, PayloadLen, RawLen and the compression
// flags, then writes the frame. Magic and Version default to the package
// constants when zero. A payload that does not shrink is sent raw.
func WriteFrame(w io.Writer, f Frame, opts Options) error {
	limits := opts.Limits
	if uint64(len(f.Ext)) > uint64(limits.MaxExtBytes) {
		return ErrExtTooLarge
	}
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}

	h := f.Header
	if h.Magic == 0 {
		h.Magic = Magic
	}
	if h.Version == 0 {
		h.Version = Version
	}
	payload, flag, err := compress(f.Payload, opts.Compression)
	if err != nil {
		return err
	}
	h.Flags = h.Flags&^compressionFlags | flag
	h.HeaderLen = FixedHeaderLen + uint16(len(f.Ext))
	h.PayloadLen = uint32(len(payload))
	h.RawLen = uint32(len(f.Payload))

	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if len(f.Ext) > 0 {
		if _, err := w.Write(f.Ext); err != nil {
			return err
		}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.LittleEndian.PutUint64(buf[8:16], h.MessageID)
	binary.LittleEndian.PutUint32(buf[16:20], h.SchemaID)
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	binary.LittleEndian.PutUint32(buf[24:28], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[28:32], h.RawLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint16(b[4:6]),
		HeaderLen:  binary.LittleEndian.Uint16(b[6:8]),
		MessageID:  binary.LittleEndian.Uint64(b[8:16]),
		SchemaID:   binary.LittleEndian.Uint32(b[16:20]),
		Flags:      binary.LittleEndian.Uint32(b[20:24]),
		PayloadLen: binary.LittleEndian.Uint32(b[24:28]),
		RawLen:     binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}
