package reload

import (
	"fmt"
	"os"
	"path/filepath"
)

// packageMarker identifies a directory as part of the backend app's package
// tree when deciding how far up to place the watch root.
const packageMarker = "__init__.py"

// defaultExcludedNames are always skipped regardless of file type.
var defaultExcludedNames = map[string]bool{
	".gitignore":     true,
	"uploaded_files": true,
}

// Resolve computes the directories and files handed to the backend server's
// hot reloader. Starting from the directory containing moduleFile, it walks
// up while the parent directory is part of the same package tree, then lists
// that root's immediate children minus the default exclusions. Include paths
// are appended after the children, duplicates are dropped, and any resulting
// entry that is the same file as an exclude path is removed.
//
// When moduleFile is empty the root falls back to the parent directory of
// appName.
func Resolve(appName, moduleFile string, include, exclude []string) ([]string, error) {
	root := filepath.Dir(appName)
	if moduleFile != "" {
		dir, err := packageRoot(moduleFile)
		if err != nil {
			return nil, err
		}
		root = dir
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list reload root %s: %w", root, err)
	}

	var paths []string
	for _, entry := range entries {
		if excludedByDefault(root, entry) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve reload path: %w", err)
		}
		paths = append(paths, abs)
	}

	// Includes are deliberate, so they bypass the default exclusions.
	for _, inc := range include {
		abs, err := filepath.Abs(inc)
		if err != nil {
			return nil, fmt.Errorf("resolve include path %s: %w", inc, err)
		}
		paths = append(paths, abs)
	}
	paths = dedupe(paths)

	if len(exclude) > 0 {
		paths = dropExcluded(paths, exclude)
	}

	return paths, nil
}

// dedupe removes later repetitions of a path, keeping first-seen order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	kept := paths[:0]
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		kept = append(kept, path)
	}
	return kept
}

// packageRoot walks up from moduleFile's directory while the parent still
// contains the package marker, landing on the outermost package directory.
func packageRoot(moduleFile string) (string, error) {
	dir, err := filepath.Abs(filepath.Dir(moduleFile))
	if err != nil {
		return "", fmt.Errorf("resolve module path %s: %w", moduleFile, err)
	}

	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		marked, err := containsMarker(parent)
		if err != nil {
			return "", err
		}
		if !marked {
			break
		}
		dir = parent
	}

	return dir, nil
}

func containsMarker(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.Name() == packageMarker {
			return true, nil
		}
	}
	return false, nil
}

// excludedByDefault reports whether a directory entry is noise for the
// reloader: hidden and dunder directories, plus a few well-known names.
// A symlink counts as a directory when its target is one.
func excludedByDefault(root string, entry os.DirEntry) bool {
	name := entry.Name()
	if resolvesToDir(filepath.Join(root, name), entry) {
		if len(name) > 0 && name[0] == '.' {
			return true
		}
		if len(name) > 1 && name[0] == '_' && name[1] == '_' {
			return true
		}
	}
	return defaultExcludedNames[name]
}

// resolvesToDir reports whether entry is a directory, following a symlink
// to its target.
func resolvesToDir(path string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// dropExcluded removes every path that resolves to the same file as one of
// the exclude paths. Comparing by file identity rather than by string makes
// the filter robust to symlinks and alternate spellings of the same path.
func dropExcluded(paths, exclude []string) []string {
	infos := make([]os.FileInfo, 0, len(exclude))
	for _, ex := range exclude {
		info, err := os.Stat(ex)
		if err != nil {
			// An exclude that doesn't exist can't match anything.
			continue
		}
		infos = append(infos, info)
	}

	kept := paths[:0]
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			kept = append(kept, path)
			continue
		}
		excluded := false
		for _, ex := range infos {
			if os.SameFile(info, ex) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, path)
		}
	}
	return kept
}
