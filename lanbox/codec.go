package lanbox

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrMalformedEncoding = errors.New("lanbox: malformed hex value")

// DecodeForwardedValue decodes the hex-encoded UTF-8 payload of auto.forward
// events. Values of other methods are plain and must not pass through here.
func DecodeForwardedValue(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedEncoding, s)
	}
	return string(b), nil
}

func EncodeForwardedValue(s string) string {
	return hex.EncodeToString([]byte(s))
}
