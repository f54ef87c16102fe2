package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SafeMode is the mandatory fallback mode, activated whenever the active
// mode's task lists fail to start.
const SafeMode = "safe"

const activeMarkerName = "active"

// modePath returns the directory holding a mode's task lists.
func modePath(schedulerDir, mode string) string {
	return filepath.Join(schedulerDir, mode)
}

// createMode creates a new, empty mode directory.
func createMode(schedulerDir, mode string) error {
	dir := modePath(schedulerDir, mode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scheduler: create mode %s: %w", mode, err)
	}
	return nil
}

// availableModes lists the mode directories under schedulerDir, optionally
// filtered to a single name.
func availableModes(schedulerDir string, only string) ([]string, error) {
	entries, err := os.ReadDir(schedulerDir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: read scheduler dir: %w", err)
	}
	var modes []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if only != "" && e.Name() != only {
			continue
		}
		modes = append(modes, e.Name())
	}
	sort.Strings(modes)
	return modes, nil
}

// activateMode writes the active-mode marker file, overwriting any prior
// marker. The marker's contents are the mode's directory name.
func activateMode(schedulerDir, mode string) error {
	marker := filepath.Join(schedulerDir, activeMarkerName)
	tmp := marker + ".tmp"
	if err := os.WriteFile(tmp, []byte(mode), 0o644); err != nil {
		return fmt.Errorf("scheduler: write active marker: %w", err)
	}
	if err := os.Rename(tmp, marker); err != nil {
		return fmt.Errorf("scheduler: activate mode %s: %w", mode, err)
	}
	return nil
}

// activeModeInfo is a resolved active mode: its name and its directory path.
type activeModeInfo struct {
	Name string
	Path string
}

// getActiveMode reads the active-mode marker, if any.
func getActiveMode(schedulerDir string) (*activeModeInfo, error) {
	marker := filepath.Join(schedulerDir, activeMarkerName)
	data, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduler: read active marker: %w", err)
	}
	name := strings.TrimSpace(string(data))
	return &activeModeInfo{Name: name, Path: modePath(schedulerDir, name)}, nil
}

// isModeActive reports whether the named mode is currently active.
func isModeActive(schedulerDir, mode string) bool {
	active, err := getActiveMode(schedulerDir)
	if err != nil || active == nil {
		return false
	}
	return active.Name == mode
}
