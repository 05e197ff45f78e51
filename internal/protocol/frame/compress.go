package frame

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload codec used by WriteFrame.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", ErrBadCompression, name)
	}
}

// zstd coders are safe for concurrent use and reused across frames.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("frame: zstd encoder init: " + err.Error())
	}
	// DecodeAll stops at the capacity of dst, which decompress sizes to
	// RawLen.
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecodeAllCapLimit(true),
		zstd.WithDecoderMaxMemory(uint64(DefaultLimits().MaxPayloadBytes)),
	)
	if err != nil {
		panic("frame: zstd decoder init: " + err.Error())
	}
}

// compress returns the bytes to put on the wire and the flag describing
// them. Output that is not smaller than the input is discarded.
func compress(data []byte, c Compression) ([]byte, uint32, error) {
	if len(data) == 0 {
		return data, 0, nil
	}
	switch c {
	case CompressionNone:
		return data, 0, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("frame: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return data, 0, nil
		}
		return dst[:n], FlagLZ4, nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return data, 0, nil
		}
		return out, FlagZstd, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrBadCompression, c)
	}
}

func decompress(payload []byte, h Header) ([]byte, error) {
	switch h.Flags & compressionFlags {
	case 0:
		if h.RawLen != h.PayloadLen {
			return nil, fmt.Errorf("%w: raw_len %d != payload_len %d", ErrBadCompression, h.RawLen, h.PayloadLen)
		}
		return payload, nil
	case FlagLZ4:
		dst := make([]byte, h.RawLen)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrBadCompression, err)
		}
		if n != int(h.RawLen) {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrBadCompression, n, h.RawLen)
		}
		return dst, nil
	case FlagZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, h.RawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrBadCompression, err)
		}
		if len(out) != int(h.RawLen) {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrBadCompression, len(out), h.RawLen)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: both lz4 and zstd flags set", ErrBadCompression)
	}
}
