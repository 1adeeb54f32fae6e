package symlink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
)

const backupTimeFormat = "20060102T150405"

func backupPrefix(target, suffix string) string {
	return filepath.Base(target) + "." + suffix + "-"
}

// nextBackupPath returns a free, timestamp-suffixed sibling of target
func (m *Manager) nextBackupPath(target, suffix string) (string, error) {
	base := filepath.Join(filepath.Dir(target), backupPrefix(target, suffix)+m.now().Format(backupTimeFormat))
	candidate := base
	for n := 1; ; n++ {
		_, err := m.fs.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot check backup path %s", candidate)
		}
		candidate = fmt.Sprintf("%s.%d", base, n)
	}
}

// Backups lists the backups of target, oldest first. Order is by
// modification time, then by name.
func (m *Manager) Backups(target, suffix string) ([]types.BackupRecord, error) {
	if suffix == "" {
		suffix = DefaultBackupSuffix
	}
	dir := filepath.Dir(target)
	entries, err := m.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot list %s", dir)
	}

	prefix := backupPrefix(target, suffix)
	var records []types.BackupRecord
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := m.fs.Lstat(path)
		if err != nil {
			continue
		}
		records = append(records, types.BackupRecord{Target: target, Path: path, ModTime: info.ModTime()})
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].ModTime.Equal(records[j].ModTime) {
			return records[i].ModTime.Before(records[j].ModTime)
		}
		return records[i].Path < records[j].Path
	})
	return records, nil
}

// LatestBackup returns the authoritative backup of target
func (m *Manager) LatestBackup(target, suffix string) (types.BackupRecord, bool, error) {
	records, err := m.Backups(target, suffix)
	if err != nil || len(records) == 0 {
		return types.BackupRecord{}, false, err
	}
	return records[len(records)-1], true, nil
}
