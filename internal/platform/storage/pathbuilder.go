package storage

import (
	"fmt"
	"strings"
)

const catalogImagePrefix = "assets/catalog"

// CatalogImageKey composes the object key for a catalog image. Keys are flat
// under the catalog prefix and the image ID doubles as the file name, so a
// key stays stable when the image is reassigned between shoes.
func CatalogImageKey(imageID, extension string) (string, error) {
	id, err := validateSegment("imageID", imageID)
	if err != nil {
		return "", err
	}
	ext, err := validateSegment("extension", extension)
	if err != nil {
		return "", err
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "", fmt.Errorf("storage: extension is required")
	}
	return fmt.Sprintf("%s/%s.%s", catalogImagePrefix, strings.ToLower(id), ext), nil
}

// IsCatalogImageKey reports whether the key addresses an object under the
// catalog image prefix. Signing endpoints use it to refuse keys that would
// expose objects outside catalog imagery.
func IsCatalogImageKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	rest, ok := strings.CutPrefix(key, catalogImagePrefix+"/")
	if !ok {
		return false
	}
	return rest != "" && !strings.Contains(rest, "/")
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
