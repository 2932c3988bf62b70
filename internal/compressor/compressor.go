package compressor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// MinSize is the smallest payload worth compressing.
const MinSize = 256

// Already-compressed formats gain nothing from lz4.
var skipTypes = map[string]bool{
	"image/png": true, "image/jpeg": true, "image/gif": true, "image/webp": true,
	"image/avif": true, "application/zip": true, "application/x-gzip": true,
	"video/mp4": true, "audio/mpeg": true, "application/pdf": true,
}

// ShouldSkipCompression sniffs data and reports whether it is too small or
// already in a compressed format.
func ShouldSkipCompression(data []byte) bool {
	if len(data) < MinSize {
		return true
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return skipTypes[sniffed] || isAVIF(data)
}

// http.DetectContentType does not know AVIF; check the ftyp brand directly.
func isAVIF(data []byte) bool {
	return len(data) >= 12 && string(data[4:8]) == "ftyp" &&
		(string(data[8:12]) == "avif" || string(data[8:12]) == "avis")
}

// CompressChunk lz4-compresses data into a single frame.
func CompressChunk(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	return compressed.Bytes(), nil
}

// DecompressData reverses CompressChunk.
func DecompressData(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	var decompressed bytes.Buffer

	if _, err := io.Copy(&decompressed, reader); err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	return decompressed.Bytes(), nil
}
