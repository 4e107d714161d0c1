package transcriber

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultModel is used when no model is configured or flagged.
const DefaultModel = "base.en"

// ModelInfo describes one downloadable whisper model.
type ModelInfo struct {
	Name        string
	FileName    string
	URL         string
	Size        string
	Description string
}

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Models lists the supported whisper model sizes, smallest first.
var Models = []ModelInfo{
	{"tiny", "ggml-tiny.bin", modelBaseURL + "ggml-tiny.bin", "75MB", "Fastest, basic quality"},
	{"tiny.en", "ggml-tiny.en.bin", modelBaseURL + "ggml-tiny.en.bin", "75MB", "Fastest, English only"},
	{"base", "ggml-base.bin", modelBaseURL + "ggml-base.bin", "142MB", "Good for quick drafts"},
	{"base.en", "ggml-base.en.bin", modelBaseURL + "ggml-base.en.bin", "142MB", "Good for quick drafts, English only"},
	{"small", "ggml-small.bin", modelBaseURL + "ggml-small.bin", "466MB", "Balanced for most uses"},
	{"small.en", "ggml-small.en.bin", modelBaseURL + "ggml-small.en.bin", "466MB", "Balanced, English only"},
	{"medium", "ggml-medium.bin", modelBaseURL + "ggml-medium.bin", "1.5GB", "Higher accuracy"},
	{"medium.en", "ggml-medium.en.bin", modelBaseURL + "ggml-medium.en.bin", "1.5GB", "Higher accuracy, English only"},
	{"large-v3", "ggml-large-v3.bin", modelBaseURL + "ggml-large-v3.bin", "2.9GB", "Highest accuracy, slowest"},
	{"large-v3-turbo", "ggml-large-v3-turbo.bin", modelBaseURL + "ggml-large-v3-turbo.bin", "1.5GB", "Near-large quality, much faster"},
}

// GetModel returns the registry entry for a model name, or nil.
func GetModel(name string) *ModelInfo {
	for i := range Models {
		if Models[i].Name == name {
			return &Models[i]
		}
	}
	return nil
}

// DefaultModelsDir returns ~/.config/batchscribe/models.
func DefaultModelsDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "batchscribe", "models"), nil
}

// ModelManager resolves model names to files under a models directory and
// downloads missing ones.
type ModelManager struct {
	modelsDir string
}

// NewModelManager creates a manager rooted at modelsDir.
func NewModelManager(modelsDir string) *ModelManager {
	return &ModelManager{modelsDir: modelsDir}
}

// ModelPath returns the on-disk path for a model name. Unregistered names
// are treated as direct file names, with .bin appended when absent.
func (m *ModelManager) ModelPath(name string) string {
	if info := GetModel(name); info != nil {
		return filepath.Join(m.modelsDir, info.FileName)
	}
	file := name
	if !strings.HasSuffix(file, ".bin") {
		file += ".bin"
	}
	return filepath.Join(m.modelsDir, file)
}

// IsModelDownloaded reports whether the model file exists and is non-empty.
func (m *ModelManager) IsModelDownloaded(name string) bool {
	info, err := os.Stat(m.ModelPath(name))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// ListDownloadedModels returns registry names whose files are present,
// plus any stray .bin files in the directory, sorted.
func (m *ModelManager) ListDownloadedModels() []string {
	entries, err := os.ReadDir(m.modelsDir)
	if err != nil {
		return nil
	}

	byFile := map[string]string{}
	for _, info := range Models {
		byFile[info.FileName] = info.Name
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bin") {
			continue
		}
		if name, ok := byFile[entry.Name()]; ok {
			names = append(names, name)
		} else {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// DownloadModel fetches a model into the models directory, reporting bytes
// received through onProgress (nil is fine). The download goes to a temp
// file first so an interrupted transfer never leaves a half model behind.
func (m *ModelManager) DownloadModel(name string, onProgress func(current, total int64)) (string, error) {
	info := GetModel(name)
	if info == nil {
		return "", fmt.Errorf("unknown model %q", name)
	}

	if err := os.MkdirAll(m.modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	resp, err := http.Get(info.URL)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model download failed: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(m.modelsDir, ".download-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var current int64
	total := resp.ContentLength
	buf := make([]byte, 256*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				tmp.Close()
				return "", err
			}
			current += int64(n)
			if onProgress != nil {
				onProgress(current, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return "", readErr
		}
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	target := m.ModelPath(name)
	if err := os.Rename(tmpPath, target); err != nil {
		return "", err
	}
	return target, nil
}
