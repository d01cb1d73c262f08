package permission

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// HostConfigDir is the host application's internal configuration area inside
// the vault. Agent-created files must never land there.
const HostConfigDir = ".vaultpilot"

// CheckCreatePath validates the target path of a file-creating tool. The
// path must be relative to the vault root, must not escape it through parent
// traversal, and must not target the host configuration area.
func CheckCreatePath(target string) error {
	if target == "" {
		return fmt.Errorf("target path is empty")
	}

	normalized := filepath.ToSlash(target)
	if path.IsAbs(normalized) || filepath.IsAbs(target) {
		return fmt.Errorf("target path must be relative to the vault root")
	}
	// Windows drive-letter absolute paths slip past IsAbs on other platforms.
	if len(normalized) >= 2 && normalized[1] == ':' {
		return fmt.Errorf("target path must be relative to the vault root")
	}

	clean := path.Clean(normalized)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("target path escapes the vault root")
	}

	if clean == HostConfigDir || strings.HasPrefix(clean, HostConfigDir+"/") {
		return fmt.Errorf("target path is inside the %s configuration area", HostConfigDir)
	}

	return nil
}
