package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Fingerprint is the deterministic cache/observability key for a task:
// sha256 over canonical JSON of (normalized text, domain, tier).
type Fingerprint string

// canonicalJSON returns a stable JSON representation (sorted keys).
// Go's encoding/json sorts map keys by default, ensuring stability for structs.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func ComputeSHA256(v any) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

type fingerprintPayload struct {
	Text   string `json:"text"`
	Domain string `json:"domain"`
	Tier   string `json:"tier"`
}

// ComputeFingerprint derives the task fingerprint. Text is normalized
// (whitespace collapsed, lowercased) so cosmetic edits do not defeat
// the cache.
func ComputeFingerprint(task Task, domain string, tier Tier) (Fingerprint, error) {
	payload := fingerprintPayload{
		Text:   normalizeText(task.Text()),
		Domain: strings.ToLower(domain),
		Tier:   tier.String(),
	}
	h, err := ComputeSHA256(payload)
	if err != nil {
		return "", err
	}
	return Fingerprint(h), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (f Fingerprint) Valid() bool {
	return isHex64(string(f))
}

// Short returns the first 12 hex chars for log lines.
func (f Fingerprint) Short() string {
	if len(f) < 12 {
		return string(f)
	}
	return string(f[:12])
}

func isHex64(value string) bool {
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
