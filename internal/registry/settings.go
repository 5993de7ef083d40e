package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"tinyserve/internal/common/fsutil"
	"tinyserve/internal/config"
)

// settingsFiles are probed in order inside each plugin directory.
var settingsFiles = []string{"model.yaml", "model.yml", "model.toml", "model.json"}

// loadSettings reads the first settings file in dir. A missing file yields an
// empty map.
func loadSettings(dir string) (map[string]any, error) {
	path := fsutil.FirstExisting(dir, settingsFiles...)
	if path == "" {
		return map[string]any{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := config.Unmarshal(filepath.Ext(path), b, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}
