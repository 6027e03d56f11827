package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateObjectKey validates that an object key is safe to join under the
// media directory: relative, no traversal components.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("object key cannot be empty")
	}

	cleanKey := filepath.Clean(key)

	if strings.Contains(cleanKey, "..") {
		return fmt.Errorf("object key contains directory traversal: %s", key)
	}

	if filepath.IsAbs(cleanKey) {
		return fmt.Errorf("absolute object keys not allowed: %s", key)
	}

	return nil
}

// ValidatePathWithinBase ensures key resolves inside baseDir after joining.
func ValidatePathWithinBase(key, baseDir string) error {
	if err := ValidateObjectKey(key); err != nil {
		return err
	}

	fullPath := filepath.Clean(filepath.Join(baseDir, key))
	cleanBase := filepath.Clean(baseDir)

	if !strings.HasPrefix(fullPath, cleanBase) {
		return fmt.Errorf("object key escapes base directory: %s", key)
	}

	return nil
}
