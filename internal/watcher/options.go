package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

const defaultSettleDelay = 100 * time.Millisecond

// editorArtifacts are files editors write next to the one being saved.
var editorArtifacts = []string{"*.swp", "*.swx", "*.tmp", "*~", ".#*", "#*#", "4913", ".DS_Store"}

// Options configures a Watcher.
type Options struct {
	// SettleDelay is how long a file must stay unchanged before its event
	// is reported.
	SettleDelay time.Duration
	// Ignore holds base-name glob patterns to skip. Nil skips editor
	// artifacts; an empty slice skips nothing.
	Ignore []string
	// SkipHidden skips dot files.
	SkipHidden bool
}

func (o Options) withDefaults() Options {
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.Ignore == nil {
		o.Ignore = editorArtifacts
	}
	return o
}

func (o Options) ignored(path string) bool {
	base := filepath.Base(path)
	if o.SkipHidden && strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range o.Ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
