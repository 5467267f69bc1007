package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type FileInfo struct {
	SessionID string
	Path      string
	Mtime     int64
	Size      int64
}

// ScanRoot walks a projects root and returns every session log under it,
// ordered by path. A missing root yields no files and no error.
func ScanRoot(root string) ([]FileInfo, error) {
	var files []FileInfo
	if root == "" {
		return nil, nil
	}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if filepath.Base(path) == "subagents" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		base := filepath.Base(path)
		if strings.Contains(base, "sessions-index") {
			return nil
		}
		files = append(files, FileInfo{
			SessionID: strings.TrimSuffix(base, ".jsonl"),
			Path:      path,
			Mtime:     info.ModTime().Unix(),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Newest keeps one file per session ID: the most recently modified one when
// the same ID appears under two project directories. Order follows files.
func Newest(files []FileInfo) []FileInfo {
	best := make(map[string]int, len(files))
	for i, f := range files {
		if j, ok := best[f.SessionID]; ok && files[j].Mtime >= f.Mtime {
			continue
		}
		best[f.SessionID] = i
	}
	out := make([]FileInfo, 0, len(best))
	for i, f := range files {
		if best[f.SessionID] == i {
			out = append(out, f)
		}
	}
	return out
}

// Logs maps session ID to log path, resolving duplicates like Newest.
func Logs(root string) (map[string]string, error) {
	files, err := ScanRoot(root)
	if err != nil {
		return nil, err
	}
	files = Newest(files)
	paths := make(map[string]string, len(files))
	for _, f := range files {
		paths[f.SessionID] = f.Path
	}
	return paths, nil
}
