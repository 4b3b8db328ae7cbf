package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const (
	Elf64CompressionHeaderSize = 24

	// Prefix of the pre-SHF_COMPRESSED gnu .zdebug_* sections, followed by
	// the uncompressed size (big endian uint64) and a zlib stream.
	gnuCompressedMagic      = "ZLIB"
	gnuCompressedHeaderSize = 12
)

type CompressionType uint32

const (
	CompressionTypeZlib = CompressionType(1) // ELFCOMPRESS_ZLIB
	CompressionTypeZstd = CompressionType(2) // ELFCOMPRESS_ZSTD
)

func (ctype CompressionType) String() string {
	switch ctype {
	case CompressionTypeZlib:
		return "zlib"
	case CompressionTypeZstd:
		return "zstd"
	default:
		return fmt.Sprintf("CompressionType(%d)", uint32(ctype))
	}
}

// Elf64_Chdr
type CompressionHeader struct {
	CompressionType
	Reserved         uint32
	Size             uint64 // uncompressed size
	AddressAlignment uint64
}

// Decompress decodes the content of a SHF_COMPRESSED section.
func Decompress(byteOrder binary.ByteOrder, content []byte) ([]byte, error) {
	header := CompressionHeader{}
	_, err := binary.Decode(content, byteOrder, &header)
	if err != nil {
		return nil, fmt.Errorf("invalid compression header: %w", err)
	}

	payload := content[Elf64CompressionHeaderSize:]

	var result []byte
	switch header.CompressionType {
	case CompressionTypeZlib:
		result, err = inflate(payload, header.Size)
	case CompressionTypeZstd:
		result, err = decodeZstd(payload, header.Size)
	default:
		return nil, fmt.Errorf(
			"unsupported compression type (%s)",
			header.CompressionType)
	}
	if err != nil {
		return nil, fmt.Errorf(
			"failed to decompress %s content: %w",
			header.CompressionType,
			err)
	}

	if uint64(len(result)) != header.Size {
		return nil, fmt.Errorf(
			"decompressed size mismatch (%d != %d)",
			len(result),
			header.Size)
	}

	return result, nil
}

// decompressGnu decodes the content of a gnu .zdebug_* section.
func decompressGnu(content []byte) ([]byte, error) {
	if len(content) < gnuCompressedHeaderSize ||
		string(content[:len(gnuCompressedMagic)]) != gnuCompressedMagic {
		return nil, fmt.Errorf("invalid gnu compressed section header")
	}

	size := binary.BigEndian.Uint64(content[len(gnuCompressedMagic):])

	result, err := inflate(content[gnuCompressedHeaderSize:], size)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zlib content: %w", err)
	}

	if uint64(len(result)) != size {
		return nil, fmt.Errorf(
			"decompressed size mismatch (%d != %d)",
			len(result),
			size)
	}

	return result, nil
}

func inflate(payload []byte, size uint64) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	// NOTE: the preallocation is capped since size is not validated.
	result := bytes.NewBuffer(make([]byte, 0, min(size, uint64(len(payload))*8)))
	_, err = io.Copy(result, reader)
	if err != nil {
		return nil, err
	}

	return result.Bytes(), nil
}

func decodeZstd(payload []byte, size uint64) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(
		payload,
		make([]byte, 0, min(size, uint64(len(payload))*8)))
}
