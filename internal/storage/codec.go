package storage

import (
	"errors"
	"fmt"

	"github.com/jaywantadh/fragments/internal/compressor"
	"github.com/jaywantadh/fragments/internal/encryptor"
)

// Blob envelope: magic byte, flags byte, payload.
const (
	blobMagic      byte = 'F'
	flagCompressed byte = 1 << 0
	flagSealed     byte = 1 << 1
)

var errBadEnvelope = errors.New("corrupt blob envelope")

// Codec encodes fragment bytes for durable backends. The zero value stores
// the payload unmodified inside the envelope.
type Codec struct {
	// Compress enables lz4 for payloads that are not already compressed.
	Compress bool
	// Encryptor, when set, seals every payload.
	Encryptor encryptor.Encryptor
}

// Encode wraps data in the blob envelope.
func (c Codec) Encode(data []byte) ([]byte, error) {
	var flags byte
	payload := data
	if c.Compress && !compressor.ShouldSkipCompression(data) {
		compressed, err := compressor.CompressChunk(data)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(data) {
			payload = compressed
			flags |= flagCompressed
		}
	}
	if c.Encryptor != nil {
		sealed, err := c.Encryptor.Encrypt(payload)
		if err != nil {
			return nil, err
		}
		payload = sealed
		flags |= flagSealed
	}
	out := make([]byte, 0, len(payload)+2)
	out = append(out, blobMagic, flags)
	return append(out, payload...), nil
}

// Decode reverses Encode.
func (c Codec) Decode(blob []byte) ([]byte, error) {
	if len(blob) < 2 || blob[0] != blobMagic {
		return nil, errBadEnvelope
	}
	flags, payload := blob[1], blob[2:]
	if flags&^(flagCompressed|flagSealed) != 0 {
		return nil, fmt.Errorf("%w: unknown flags %#x", errBadEnvelope, flags)
	}
	if flags&flagSealed != 0 {
		if c.Encryptor == nil {
			return nil, errors.New("blob is sealed but no encryption key is configured")
		}
		opened, err := c.Encryptor.Decrypt(payload)
		if err != nil {
			return nil, err
		}
		payload = opened
	}
	if flags&flagCompressed != 0 {
		return compressor.DecompressData(payload)
	}
	return append([]byte{}, payload...), nil
}
