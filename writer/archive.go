package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gridflow/logger"
)

// ArchiveOldArtifacts moves artifacts from earlier days out of the
// production directory into the archive directory, so the production
// directory only ever holds the current day's output. Concurrent runs may
// both attempt the same move; losing that race is harmless and ignored.
func ArchiveOldArtifacts(productionDir, archiveDir string, today time.Time) (int, error) {
	log := logger.GetLogger().WithComponent("archiver").WithFields(logger.Fields{
		"production_dir": productionDir,
		"archive_dir":    archiveDir,
	})

	entries, err := os.ReadDir(productionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read production dir: %w", err)
	}

	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(dayStart) {
			continue
		}

		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return moved, fmt.Errorf("create archive dir: %w", err)
		}
		src := filepath.Join(productionDir, entry.Name())
		dst := filepath.Join(archiveDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": entry.Name()}).Warn("archive move failed")
			continue
		}
		moved++
	}

	if moved > 0 {
		log.WithFields(logger.Fields{"moved": moved}).Info("stale artifacts archived")
	}
	return moved, nil
}
