package worker

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pabot-dev/pabot/internal/merger"
)

// ArtifactOptions controls which files count as artifacts for merging.
type ArtifactOptions struct {
	Extensions  []string // default: png
	InSubfolders bool
}

// DefaultArtifactExtensions is used when ArtifactOptions.Extensions is empty.
var DefaultArtifactExtensions = []string{"png"}

// CollectArtifacts walks a unit's output directory for files matching the
// configured extensions, optionally recursing into subfolders, and returns
// their paths relative to outputDir.
func CollectArtifacts(outputDir string, opts ArtifactOptions) ([]string, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultArtifactExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	var found []string
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			if opts.InSubfolders {
				sub, err := CollectArtifacts(filepath.Join(outputDir, entry.Name()), opts)
				if err != nil {
					return nil, err
				}
				for _, s := range sub {
					found = append(found, filepath.Join(entry.Name(), s))
				}
			}
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))
		if extSet[ext] {
			found = append(found, entry.Name())
		}
	}

	return found, nil
}

// CopyArtifacts copies each relative artifact path from srcDir into dstDir,
// namespaced by queueIndex to avoid name collisions, and returns the
// PathMapping for the Merger to rewrite href/src references with.
func CopyArtifacts(queueIndex int, srcDir, dstDir string, artifacts []string) ([]merger.PathMapping, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}

	mappings := merger.BuildMapping(queueIndex, artifacts, dstDir)
	for i, a := range mappings {
		if err := copyFile(filepath.Join(srcDir, artifacts[i]), a.To); err != nil {
			return nil, err
		}
	}
	return mappings, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
