// Package syncer implements the tree-diff walk between a local directory
// and a remote prefix and the include/exclude filtering that
// gates which files participate in a sync.
package syncer

import "github.com/bmatcuk/doublestar/v4"

// Filter decides which relative paths participate in a sync. excluded
// dominates included: a path matching any exclude pattern is always
// skipped, even if it also matches an include pattern.
type Filter struct {
	included []string
	excluded []string
}

// NewFilter builds a Filter from shell-glob patterns ("**" supported via
// doublestar), grounded on sync.h's included_/excluded_ constructor
// fields.
func NewFilter(included, excluded []string) *Filter {
	return &Filter{included: included, excluded: excluded}
}

// Allow reports whether relPath should be synced.
func (f *Filter) Allow(relPath string) bool {
	for _, pat := range f.excluded {
		if match(pat, relPath) {
			return false
		}
	}
	if len(f.included) == 0 {
		return true
	}
	for _, pat := range f.included {
		if match(pat, relPath) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
