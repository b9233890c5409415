// Package textutil holds small string helpers shared by the service layer.
package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries whose key is
// blank. Returns nil when nothing survives, so callers can store the result
// directly without writing empty maps.
func NormalizeStringMap(values map[string]string) map[string]string {
	var result map[string]string
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(values))
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
