package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainBlock = "semledger/block/v1"
	DomainState = "semledger/state/v1"
)

// WithDomain computes SHA-256 with domain separation and returns it hex encoded.
// Format: SHA256(domain + 0x00 + data)
// The null separator prevents domain/data boundary ambiguity.
func WithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Sum256Hex is a plain SHA-256 with no domain prefix. Canonical graph
// documents use it so their hashes match other RDFC-1.0 implementations.
func Sum256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record hashes a canonical JSON object under the given domain.
func Record(domain string, fields map[string]any) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal %s record: %w", domain, err)
	}
	return WithDomain(domain, canonical), nil
}
