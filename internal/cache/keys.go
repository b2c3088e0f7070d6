package cache

import (
	"strings"
)

// Namespace is the Redis key prefix for the collector.
const Namespace = "eod"

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// SymbolMappingKey holds the base asset to provider id mapping for one
// environment and reference provider.
func SymbolMappingKey(env, provider string) string {
	return formatKey(env, "symbol_mapping", strings.ToLower(provider))
}
