// Package naming derives output filenames from input filenames. Every
// artifact the pipeline writes is named from its source file plus a suffix,
// so reruns stay traceable to their inputs.
package naming

import (
	"path/filepath"
	"strings"
)

// SplitExt splits a path into its stem and extension, treating the
// compound ".nii.gz" as a single extension.
func SplitExt(path string) (stem, ext string) {
	ext = filepath.Ext(path)
	stem = strings.TrimSuffix(path, ext)
	if ext == ".gz" {
		if inner := filepath.Ext(stem); inner == ".nii" {
			stem = strings.TrimSuffix(stem, inner)
			ext = inner + ext
		}
	}
	return stem, ext
}

// Derive returns the sibling filename "<stem>_<suffix><ext>" for path.
// The derivation is deterministic: the same input and suffix always produce
// the same output name.
func Derive(path, suffix string) string {
	stem, ext := SplitExt(path)
	return stem + "_" + suffix + ext
}

// DeriveIn is Derive with the output placed in dir instead of next to the
// input. An empty dir behaves like Derive.
func DeriveIn(dir, path, suffix string) string {
	if dir == "" {
		return Derive(path, suffix)
	}
	return filepath.Join(dir, filepath.Base(Derive(path, suffix)))
}
