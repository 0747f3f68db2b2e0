package crypto

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalMarshal marshals v into RFC 8785 (JCS) canonical JSON: keys
// sorted lexicographically by UTF-8 bytes, no HTML escaping, compact form.
// Signing the canonical form makes signatures independent of field order.
func CanonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: canonicalization failed: %w", err)
	}
	return canonical, nil
}
