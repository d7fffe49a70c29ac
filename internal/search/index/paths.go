package index

import (
	"path/filepath"
	"strings"
)

var modelNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")

// WithModelSuffix inserts the model name before the extension of path:
// data/embeddings.safetensors + sbert/base -> data/embeddings_sbert_base.safetensors.
func WithModelSuffix(path, model string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "_" + SanitizeModel(model) + ext
}

// SanitizeModel makes a model name safe for use in a file name.
func SanitizeModel(model string) string {
	return modelNameReplacer.Replace(strings.TrimSpace(model))
}

// lockPath returns the lock file guarding rebuilds of the artifact at path.
func lockPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, filepath.Ext(base))+".lock")
}
