package util

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compression names accepted by CompressMessage and DecompressMessage. They
// double as HTTP Content-Encoding values.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// ValidCompression reports whether name is a supported compression type.
func ValidCompression(name string) bool {
	switch name {
	case "", CompressionNone, CompressionGzip, CompressionSnappy, CompressionLZ4:
		return true
	}
	return false
}

// CompressMessage compresses data with the named algorithm.
func CompressMessage(data []byte, compressionType string) ([]byte, error) {
	switch compressionType {
	case CompressionGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionSnappy:
		return snappy.Encode(nil, data), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionNone, "":
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// DecompressMessage reverses CompressMessage. limit bounds the decompressed
// size; zero disables the check.
func DecompressMessage(data []byte, compressionType string, limit int) ([]byte, error) {
	switch compressionType {
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := gr.Close(); err != nil {
				Error("failed to close gr: %v", err)
			}
		}()
		return readLimited(gr, limit)

	case CompressionSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if limit > 0 && n > limit {
			return nil, fmt.Errorf("decompressed size %d exceeds limit of %d", n, limit)
		}
		return snappy.Decode(nil, data)

	case CompressionLZ4:
		return readLimited(lz4.NewReader(bytes.NewReader(data)), limit)

	case CompressionNone, "":
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, fmt.Errorf("decompressed size exceeds limit of %d", limit)
	}
	return out, nil
}
