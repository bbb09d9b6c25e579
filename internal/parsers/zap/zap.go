// Package zap parses the two ZAP on-disk formats: the single-block
// microzap and the hash-table fatzap. Readers here operate on individual
// blocks; walking a fatzap's leaf blocks is the caller's concern.
package zap

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// Kind inspects logical block zero of a ZAP object and reports which
// format it uses.
func Kind(block0 []byte, endian binary.ByteOrder) (types.ZapKind, error) {
	if len(block0) < 8 {
		return 0, fmt.Errorf("data too small for ZAP block type: %d bytes", len(block0))
	}
	switch endian.Uint64(block0[0:8]) {
	case types.ZbtMicro:
		return types.ZapKindMicro, nil
	case types.ZbtHeader:
		return types.ZapKindFat, nil
	default:
		return 0, fmt.Errorf("unrecognized ZAP block type: 0x%x", endian.Uint64(block0[0:8]))
	}
}
