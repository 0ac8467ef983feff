package fs

import (
	"sort"
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Path       string   `json:"path"`
	SystemDir  string   `json:"system_dir"`
	ReadOnly   bool     `json:"read_only"`
	Codecs     []string `json:"codecs"`
	LockedKeys int      `json:"locked_keys"`
	FileMode   string   `json:"file_mode"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	codecs := make([]string, 0, len(s.config.Codecs))
	for ext := range s.config.Codecs {
		codecs = append(codecs, ext)
	}
	sort.Strings(codecs)

	return StoreState{
		Path:       s.Path,
		SystemDir:  s.config.SystemDir,
		ReadOnly:   s.config.ReadOnly,
		Codecs:     codecs,
		LockedKeys: s.locks.Len(),
		FileMode:   s.config.FileMode.String(),
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

// AuditLogState exposes internal state for observability.
type AuditLogState struct {
	Path          string     `json:"path"`
	ReadOnly      bool       `json:"read_only"`
	Categories    int        `json:"categories"`
	WatcherActive bool       `json:"watcher_active"`
	LastCheck     *time.Time `json:"last_check,omitempty"`
}

// State implements introspection.Introspectable.
func (l *AuditLog) State() any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return AuditLogState{
		Path:          l.Path,
		ReadOnly:      l.config.ReadOnly,
		Categories:    l.index.Len(),
		WatcherActive: l.watcherActive,
		LastCheck:     l.lastCheck,
	}
}

// ComponentType implements introspection.Component.
func (l *AuditLog) ComponentType() string {
	return "audit_log"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
var _ introspection.Introspectable = (*AuditLog)(nil)
var _ introspection.Component = (*AuditLog)(nil)

func (l *AuditLog) setWatcherActive(active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watcherActive = active
}

func (l *AuditLog) recordCheck() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.config.Clock()
	l.lastCheck = &now
}
