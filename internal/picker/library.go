package picker

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// File is one media file offered by the picker.
type File struct {
	Folder  string
	Name    string
	Path    string
	ModTime time.Time
}

// Library lists the configured media folders.
type Library struct {
	fs afero.Fs

	mu      sync.RWMutex
	folders []string
	exts    map[string]struct{}
}

func NewLibrary(fs afero.Fs, folders, exts []string) *Library {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &Library{fs: fs}
	l.Reconfigure(folders, exts)
	return l
}

// Reconfigure swaps folders and the search extension filter.
func (l *Library) Reconfigure(folders, exts []string) {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	l.mu.Lock()
	l.folders = append([]string(nil), folders...)
	l.exts = set
	l.mu.Unlock()
}

func (l *Library) Folders() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.folders...)
}

// Folder returns the i-th configured folder.
func (l *Library) Folder(i int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.folders) {
		return "", false
	}
	return l.folders[i], true
}

// List returns every regular file in folder ordered by modification time.
func (l *Library) List(folder string, newestFirst bool) ([]File, error) {
	files, err := l.readDir(folder, nil)
	if err != nil {
		return nil, err
	}
	SortByModTime(files, newestFirst)
	return files, nil
}

// Search returns media files from every folder whose name contains query,
// case-insensitively. Unreadable folders are skipped.
func (l *Library) Search(query string) ([]File, []error) {
	q := strings.ToLower(strings.TrimSpace(query))
	l.mu.RLock()
	folders := append([]string(nil), l.folders...)
	exts := l.exts
	l.mu.RUnlock()

	var out []File
	var errs []error
	for _, folder := range folders {
		files, err := l.readDir(folder, func(name string) bool {
			if _, ok := exts[strings.ToLower(filepath.Ext(name))]; !ok {
				return false
			}
			return strings.Contains(strings.ToLower(name), q)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, files...)
	}
	return out, errs
}

func (l *Library) readDir(folder string, keep func(name string) bool) ([]File, error) {
	infos, err := afero.ReadDir(l.fs, folder)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	out := make([]File, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		if keep != nil && !keep(fi.Name()) {
			continue
		}
		out = append(out, File{
			Folder:  folder,
			Name:    fi.Name(),
			Path:    filepath.Join(folder, fi.Name()),
			ModTime: fi.ModTime(),
		})
	}
	return out, nil
}

// SortByModTime orders files in place; ties keep name order.
func SortByModTime(files []File, newestFirst bool) {
	sort.SliceStable(files, func(i, j int) bool {
		if newestFirst {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
}
