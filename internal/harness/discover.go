package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// NoScenariosError is returned when a scenario directory holds no
// scenario files.
type NoScenariosError struct {
	Dir string
}

// Error implements the error interface.
func (e *NoScenariosError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml, *.yml) found in %s", e.Dir)
}

// DiscoverScenarios returns the scenario files under path. A file path is
// returned as is; a directory is walked for *.yaml and *.yml files, in
// lexical order.
func DiscoverScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, &NoScenariosError{Dir: path}
	}
	slices.Sort(files)
	return files, nil
}
