package types

import "fmt"

// Checksum and compression algorithm identifiers as stored in block
// pointer property words and dnode headers (zio_checksum_t and
// zio_compress_t).

type ChecksumType uint8

const (
	ChecksumInherit ChecksumType = iota
	ChecksumOn
	ChecksumOff
	ChecksumLabel
	ChecksumGangHeader
	ChecksumZilog
	ChecksumFletcher2
	ChecksumFletcher4
	ChecksumSha256
	ChecksumZilog2
	ChecksumNoparity
	ChecksumSha512
	ChecksumSkein
	ChecksumEdonr
	ChecksumBlake3
	ChecksumFunctions
)

var checksumNames = [ChecksumFunctions]string{
	"inherit", "on", "off", "label", "gang_header", "zilog",
	"fletcher2", "fletcher4", "sha256", "zilog2", "noparity",
	"sha512", "skein", "edonr", "blake3",
}

func (c ChecksumType) String() string {
	if c < ChecksumFunctions {
		return checksumNames[c]
	}
	return unknownName(uint64(c))
}

type CompressType uint8

const (
	CompressInherit CompressType = iota
	CompressOn
	CompressOff
	CompressLzjb
	CompressEmpty
	CompressGzip1
	CompressGzip2
	CompressGzip3
	CompressGzip4
	CompressGzip5
	CompressGzip6
	CompressGzip7
	CompressGzip8
	CompressGzip9
	CompressZle
	CompressLz4
	CompressZstd
	CompressFunctions
)

var compressNames = [CompressFunctions]string{
	"inherit", "on", "off", "lzjb", "empty",
	"gzip-1", "gzip-2", "gzip-3", "gzip-4", "gzip-5",
	"gzip-6", "gzip-7", "gzip-8", "gzip-9",
	"zle", "lz4", "zstd",
}

func (c CompressType) String() string {
	if c < CompressFunctions {
		return compressNames[c]
	}
	return unknownName(uint64(c))
}

func unknownName(v uint64) string {
	return fmt.Sprintf("unknown (%d)", v)
}
