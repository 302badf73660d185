package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/studyontology/backend/internal/util"
)

const defaultUploadRoot = "/tmp/studyontology/uploads"

var filenamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// UploadRoot returns the directory artifacts live under, from
// ARTIFACT_ROOT or the default.
func UploadRoot() string {
	return util.GetEnvString("ARTIFACT_ROOT", defaultUploadRoot)
}

// NormalizeFilename strips any directory components and replaces
// characters outside [A-Za-z0-9._-].
func NormalizeFilename(filename string) string {
	trimmed := filepath.Base(filename)
	cleaned := filenamePattern.ReplaceAllString(trimmed, "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "upload"
	}
	return cleaned
}

// BuildPath returns the canonical artifact path for a source id.
func BuildPath(root string, sourceID string) string {
	return filepath.Join(root, fmt.Sprintf("artifact-%s.json", sourceID))
}

// ValidatePath resolves a caller-supplied artifact path and rejects
// anything escaping the upload root or not pointing at a .json file.
func ValidatePath(root string, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload root: %w", err)
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve artifact path: %w", err)
	}

	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path must be under the upload root")
	}
	if strings.ToLower(filepath.Ext(resolved)) != ".json" {
		return "", fmt.Errorf("artifact path must point to a .json artifact")
	}
	return resolved, nil
}
