package codec

import "fmt"

// Limit wraps another codec and rejects payloads longer than MaxDecode at
// Decode time. Encode is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// Typical use: frames read back from a shared store such as Redis.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
