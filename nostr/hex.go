package nostr

import (
	"github.com/templexxx/xhex"

	"github.com/wippyai/nostr-wasm/errors"
)

// EncodeHex returns the lowercase hex form of b.
func EncodeHex(b []byte) string {
	dst := make([]byte, len(b)*2)
	xhex.Encode(dst, b)
	return string(dst)
}

// DecodeHex decodes exactly n bytes from lowercase hex.
func DecodeHex(op, field, s string, n int) ([]byte, error) {
	if len(s) != 2*n {
		return nil, errors.New(errors.PhaseEvent, errors.KindInvalidInput).
			Op(op).
			Detail("%s must be %d hex characters, got %d", field, 2*n, len(s)).
			Build()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, errors.InvalidInput(errors.PhaseEvent, op, field+" is not lowercase hex")
		}
	}

	dst := make([]byte, n)
	if err := xhex.Decode(dst, []byte(s)); err != nil {
		return nil, errors.Wrap(errors.PhaseEvent, errors.KindInvalidInput, err, field+" is not lowercase hex")
	}
	return dst, nil
}
