package ledger

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ReferenceLength is the number of characters in a reference code.
const ReferenceLength = 8

// NewReferenceCode returns a random code of ReferenceLength uppercase base36
// characters, e.g. "K3Z9QW1B".
func NewReferenceCode() string {
	id := uuid.New()
	code := strconv.FormatUint(binary.BigEndian.Uint64(id[8:]), 36)
	if len(code) < ReferenceLength {
		code = strings.Repeat("0", ReferenceLength-len(code)) + code
	}
	return strings.ToUpper(code[len(code)-ReferenceLength:])
}
