package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainModel      = "rxnsim/model/v1"
	DomainTrajectory = "rxnsim/trajectory/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModelHash computes a content hash of a model. Two models hash equally iff
// their canonical JSON renderings are identical, so the hash identifies the
// exact model a stored trajectory was produced from.
func ModelHash(m *Model) (string, error) {
	canonical, err := CanonicalModel(m)
	if err != nil {
		return "", fmt.Errorf("ModelHash: %w", err)
	}
	return hashWithDomain(DomainModel, canonical), nil
}

// CanonicalModel renders m as canonical JSON.
func CanonicalModel(m *Model) ([]byte, error) {
	// Round-trip through encoding/json to obtain a generic tree, then
	// canonicalize it (stable key order, NFC strings).
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	canonical, err := MarshalCanonical(dropNulls(generic))
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize model: %w", err)
	}
	return canonical, nil
}

// dropNulls removes null object members and array elements. An absent
// optional field and an explicit null mean the same thing to the loader.
func dropNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			if e != nil {
				out[k] = dropNulls(e)
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, e := range val {
			if e != nil {
				out = append(out, dropNulls(e))
			}
		}
		return out
	}
	return v
}

// TrajectoryHash hashes a sequence of (time, values) samples. Replay uses it
// to prove a re-simulation is bit-identical.
func TrajectoryHash(times []float64, values [][]float64) (string, error) {
	samples := make([]any, len(times))
	for i, t := range times {
		samples[i] = map[string]any{
			"t": t,
			"y": values[i],
		}
	}
	canonical, err := MarshalCanonical(samples)
	if err != nil {
		return "", fmt.Errorf("TrajectoryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrajectory, canonical), nil
}

// MustModelHash is like ModelHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustModelHash(m *Model) string {
	h, err := ModelHash(m)
	if err != nil {
		panic(err)
	}
	return h
}
