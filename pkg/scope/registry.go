package scope

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/freightwise/shipmentqa/pkg/logger"
)

// IdentityRegistry maps an authenticated identity to the consignee codes it
// may declare. An entry of "*" (either as identity or as a code) acts as a
// wildcard. The registry is loaded once at process start and is read-only
// afterwards.
type IdentityRegistry struct {
	entries map[string][]string
}

// LoadIdentityRegistry reads the registry from CONSIGNEE_SCOPE_REGISTRY_JSON
// or, if that is unset, from the file at CONSIGNEE_SCOPE_REGISTRY_PATH. Codes
// may be comma-packed strings. A missing registry yields an empty registry,
// which denies everything.
func LoadIdentityRegistry() *IdentityRegistry {
	raw := os.Getenv("CONSIGNEE_SCOPE_REGISTRY_JSON")
	if raw == "" {
		if path := os.Getenv("CONSIGNEE_SCOPE_REGISTRY_PATH"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Error("Failed to read consignee scope registry file", "path", path, "err", err)
				return &IdentityRegistry{entries: map[string][]string{}}
			}
			raw = string(data)
		}
	}
	if raw == "" {
		logger.Warn("No consignee scope registry configured; all scope checks will fail closed")
		return &IdentityRegistry{entries: map[string][]string{}}
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Error("Consignee scope registry is not valid JSON", "err", err)
		return &IdentityRegistry{entries: map[string][]string{}}
	}

	entries := make(map[string][]string, len(parsed))
	for identity, value := range parsed {
		var codes []string
		switch v := value.(type) {
		case string:
			codes = NormalizeCodes([]string{v})
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					codes = append(codes, s)
				}
			}
			codes = NormalizeCodes(codes)
		}
		entries[strings.TrimSpace(identity)] = codes
	}
	return &IdentityRegistry{entries: entries}
}

// NewIdentityRegistry builds a registry from an explicit mapping. Used by
// tests and by deployments that resolve entitlements elsewhere.
func NewIdentityRegistry(entries map[string][]string) *IdentityRegistry {
	normalized := make(map[string][]string, len(entries))
	for identity, codes := range entries {
		normalized[identity] = NormalizeCodes(codes)
	}
	return &IdentityRegistry{entries: normalized}
}

// Allowed intersects the declared codes with the codes registered for the
// identity. The result preserves the declared order. Unknown identities and
// empty intersections fail closed to an empty list.
func (r *IdentityRegistry) Allowed(identity string, declared []string) []string {
	declared = NormalizeCodes(declared)
	if len(declared) == 0 {
		return nil
	}

	registered, ok := r.entries[identity]
	if !ok {
		registered = r.entries["*"]
	}
	if len(registered) == 0 {
		logger.Warn("Identity has no registered consignee codes", "identity", identity)
		return nil
	}

	for _, code := range registered {
		if code == "*" {
			return declared
		}
	}

	allowed := make(map[string]struct{}, len(registered))
	for _, code := range registered {
		allowed[code] = struct{}{}
	}

	var out []string
	for _, code := range declared {
		if _, ok := allowed[code]; ok {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		logger.Warn("Declared consignee codes are all unauthorized", "identity", identity, "declared", declared)
	}
	return out
}
