package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileTree renders an ASCII tree of root down to maxDepth levels, pruning
// excluded directories. Directories sort before files.
func FileTree(root string, maxDepth int) string {
	if maxDepth <= 0 {
		maxDepth = 4
	}
	var b strings.Builder
	b.WriteString(filepath.Base(filepath.Clean(root)))
	b.WriteByte('\n')
	writeTree(&b, root, "", 1, maxDepth)
	return b.String()
}

func writeTree(b *strings.Builder, dir, prefix string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.IsDir() && ExcludedDir(e.Name()) {
			continue
		}
		kept = append(kept, e)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].IsDir() != kept[j].IsDir() {
			return kept[i].IsDir()
		}
		return strings.ToLower(kept[i].Name()) < strings.ToLower(kept[j].Name())
	})

	for i, e := range kept {
		last := i == len(kept)-1
		connector, indent := "|-- ", "|   "
		if last {
			connector, indent = "+-- ", "    "
		}
		b.WriteString(prefix + connector + e.Name() + "\n")
		if e.IsDir() {
			writeTree(b, filepath.Join(dir, e.Name()), prefix+indent, depth+1, maxDepth)
		}
	}
}
