package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Key is an ordered tuple of primitive segments identifying a query,
// e.g. ("politicians", 7, "expenses-summary", "all"). Two keys are equal
// iff their segment sequences are equal.
type Key []any

// K builds a Key from segments. Integer types are normalized to int64 and
// unsigned/float segments are kept as-is so that K("a", 7) == K("a", int64(7)).
func K(segments ...any) Key {
	k := make(Key, len(segments))
	for i, s := range segments {
		k[i] = normalizeSegment(s)
	}
	return k
}

func normalizeSegment(s any) any {
	switch v := s.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}

// Append returns a new key with segments added at the end. The receiver
// is never modified.
func (k Key) Append(segments ...any) Key {
	out := make(Key, 0, len(k)+len(segments))
	out = append(out, k...)
	return append(out, K(segments...)...)
}

// Equal reports whether both keys have the same segments.
func (k Key) Equal(o Key) bool {
	return k.String() == o.String()
}

// HasPrefix reports whether k starts with every segment of prefix.
// A prefix segment equal to Any matches any segment.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		if p == Any {
			continue
		}
		if segmentString(normalizeSegment(p)) != segmentString(k[i]) {
			return false
		}
	}
	return true
}

// Int returns the segment at index i as an integer. Negative indexes count
// from the end.
func (k Key) Int(i int) (int, bool) {
	if i < 0 {
		i += len(k)
	}
	if i < 0 || i >= len(k) {
		return 0, false
	}
	switch v := k[i].(type) {
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case uint:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Str returns the segment at index i formatted as a string. Negative indexes
// count from the end.
func (k Key) Str(i int) string {
	if i < 0 {
		i += len(k)
	}
	if i < 0 || i >= len(k) {
		return ""
	}
	if s, ok := k[i].(string); ok {
		return s
	}
	return fmt.Sprint(k[i])
}

// String returns the canonical form of the key. It is the cache identity.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range k {
		if i != 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(segmentString(s))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Hash returns a short stable digest of the key, used in logs and metrics.
func (k Key) Hash() string {
	h := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(h[:8])
}

// segmentString encodes a segment as JSON so that the string "7" and the
// number 7 never collide.
func segmentString(s any) string {
	if s == nil {
		return "null"
	}
	b, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(fmt.Sprintf("%T:%v", s, s))
	}
	return string(b)
}

type anySegment struct{}

func (anySegment) MarshalJSON() ([]byte, error) { return []byte(`"*"`), nil }

// Any is a wildcard segment for prefixes passed to HasPrefix, the Registry
// and Store.InvalidatePrefix.
var Any any = anySegment{}
