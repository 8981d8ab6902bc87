package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SetupLogFile opens a fresh timestamped log file under dir, pruning the
// directory down to maxFiles afterwards. The caller owns the returned handle.
func SetupLogFile(dir string, maxFiles int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	name := fmt.Sprintf("solace-%s.log", time.Now().Format("2006-01-02T15-04-05"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	if err := pruneLogs(dir, maxFiles); err != nil {
		// Pruning is housekeeping; logging proceeds regardless
		fmt.Fprintf(os.Stderr, "warning: prune old logs: %v\n", err)
	}

	return f, nil
}

// pruneLogs deletes the oldest log files beyond the retention count.
// The timestamped names sort chronologically.
func pruneLogs(dir string, maxFiles int) error {
	files, err := filepath.Glob(filepath.Join(dir, "solace-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= maxFiles {
		return nil
	}

	sort.Strings(files)
	for _, stale := range files[:len(files)-maxFiles] {
		if err := os.Remove(stale); err != nil {
			return fmt.Errorf("remove %s: %w", stale, err)
		}
	}
	return nil
}
