package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extKinds maps lower-case file extensions to adapter kinds.
var extKinds = map[string]string{
	".csv":  "csv",
	".tsv":  "csv",
	".txt":  "csv",
	".xlsx": "xlsx",
	".xlsm": "xlsx",
	".dbf":  "dbf",
	".htm":  "htmltable",
	".html": "htmltable",
}

// KindForPath returns the adapter kind for a file name, or "" when the
// extension is unknown.
func KindForPath(path string) string {
	return extKinds[strings.ToLower(filepath.Ext(path))]
}

// Discover lists convertible files under root.
//
// Files directly in root get no prefix. Files in a first-level sub-folder get
// the sub-folder name as Prefix, so "root/vendas/itens.csv" becomes table
// "vendas_itens" once sanitized. Deeper folders are not visited. Hidden
// entries (leading '.') and unknown extensions are skipped.
//
// Edge cases:
//   - When root is a regular file, Discover returns that single file with no
//     prefix (or an error when its extension is unknown).
//   - Output order is deterministic: root files first, then sub-folders, each
//     in lexical order.
func Discover(root string, opts Options) ([]Config, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	if !info.IsDir() {
		kind := KindForPath(root)
		if kind == "" {
			return nil, fmt.Errorf("discover %s: unsupported file extension %q", root, filepath.Ext(root))
		}
		return []Config{{Kind: kind, Path: root, Options: opts}}, nil
	}

	files, dirs, err := listDir(root)
	if err != nil {
		return nil, err
	}

	var out []Config
	for _, name := range files {
		out = append(out, Config{Kind: KindForPath(name), Path: filepath.Join(root, name), Options: opts})
	}
	for _, dir := range dirs {
		sub, _, err := listDir(filepath.Join(root, dir))
		if err != nil {
			return nil, err
		}
		for _, name := range sub {
			out = append(out, Config{
				Kind:    KindForPath(name),
				Path:    filepath.Join(root, dir, name),
				Prefix:  dir,
				Options: opts,
			})
		}
	}
	return out, nil
}

// listDir returns convertible file names and visible sub-directory names,
// both sorted.
func listDir(dir string) (files, dirs []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, name)
			continue
		}
		if KindForPath(name) != "" {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}
