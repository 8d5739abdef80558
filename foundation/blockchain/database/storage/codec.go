// Package storage provides the implementations of database.Storage: blocks
// as JSON files on disk, blocks in a badger key-value store and blocks in
// memory.
package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Codec encodes values as canonical CBOR compressed with zstd. It is used for
// the values kept in badger.
type Codec struct {
	encoder      cbor.EncMode
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCodec constructs a codec for use.
func NewCodec() *Codec {

	// The options are static so failing here is a programming error.
	encoder, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}

	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}

	c := Codec{
		encoder:      encoder,
		compressor:   compressor,
		decompressor: decompressor,
	}

	return &c
}

// Marshal encodes and compresses the value.
func (c *Codec) Marshal(value any) ([]byte, error) {
	data, err := c.encoder.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("could not encode value: %w", err)
	}

	return c.compressor.EncodeAll(data, nil), nil
}

// Unmarshal decompresses and decodes the data into the value.
func (c *Codec) Unmarshal(compressed []byte, value any) error {
	data, err := c.decompressor.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("could not decompress data: %w", err)
	}

	if err := cbor.Unmarshal(data, value); err != nil {
		return fmt.Errorf("could not decode value: %w", err)
	}

	return nil
}
