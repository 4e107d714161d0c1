package media

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// mediaExtensions lists the container/audio formats the transcriber accepts.
// Anything else is skipped during directory scans.
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
}

// File is one discovered input: its absolute path plus the path relative to
// the scan root, used to mirror directory structure under the output root.
type File struct {
	Path    string
	RelPath string
}

// IsMediaFile reports whether path has a supported media extension.
// The check is case-insensitive and purely name-based.
func IsMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// FindMedia recursively collects supported media files under root.
// Results are sorted by relative path so repeated scans of the same tree
// are deterministic. An empty tree yields an empty slice, not an error.
func FindMedia(root string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsMediaFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

// Single wraps one explicitly-named file as a scan result.
// The relative path is just the base name.
func Single(path string) File {
	return File{Path: path, RelPath: filepath.Base(path)}
}
