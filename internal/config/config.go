// Package config is the typed view of backutil's on-disk TOML configuration:
// decoding, validation, default application, and tilde expansion. Decoding
// uses github.com/BurntSushi/toml, the ecosystem-standard TOML codec (see
// DESIGN.md — no pack example decodes TOML directly, so this dependency is
// named rather than grounded on a specific kept file).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/backutil/backutil/internal/paths"
)

// DefaultDebounceSeconds is applied to Global.DebounceSeconds when the
// config file omits it (spec §3).
const DefaultDebounceSeconds = 60

// RetentionPolicy mirrors the keep_* fields of spec §3. A zero value for any
// field means "no limit of that kind"; an entirely zero RetentionPolicy
// means "no retention configured" (IsEmpty reports true).
type RetentionPolicy struct {
	KeepLast    int `toml:"keep_last,omitempty"`
	KeepDaily   int `toml:"keep_daily,omitempty"`
	KeepWeekly  int `toml:"keep_weekly,omitempty"`
	KeepMonthly int `toml:"keep_monthly,omitempty"`
}

// IsEmpty reports whether no keep_* field is set — spec's "Safety guard"
// trigger for refusing a prune.
func (r RetentionPolicy) IsEmpty() bool {
	return r.KeepLast == 0 && r.KeepDaily == 0 && r.KeepWeekly == 0 && r.KeepMonthly == 0
}

// Global carries the defaults applied to every BackupSet that does not
// override them.
type Global struct {
	DebounceSeconds int             `toml:"debounce_seconds"`
	Retention       RetentionPolicy `toml:"retention"`
}

// BackupSet is one `[[backup_set]]` table (spec §3). Source and Sources are
// mutually exclusive; validated in (*Root).Validate.
type BackupSet struct {
	Name            string          `toml:"name"`
	Source          string          `toml:"source,omitempty"`
	Sources         []string        `toml:"sources,omitempty"`
	Target          string          `toml:"target"`
	Exclude         []string        `toml:"exclude,omitempty"`
	DebounceSeconds *int            `toml:"debounce_seconds,omitempty"`
	Retention       *RetentionPolicy `toml:"retention,omitempty"`
}

// ResolvedSources returns the effective, non-empty source list regardless of
// whether the set used `source` or `sources`.
func (s BackupSet) ResolvedSources() []string {
	if s.Source != "" {
		return []string{s.Source}
	}
	return s.Sources
}

// EffectiveDebounceSeconds returns the set's override, or global's default.
func (s BackupSet) EffectiveDebounceSeconds(global Global) int {
	if s.DebounceSeconds != nil {
		return *s.DebounceSeconds
	}
	return global.DebounceSeconds
}

// EffectiveRetention returns the set's override, or global's retention, or
// nil if neither is configured — spec §4.3 "effective_retention".
func (s BackupSet) EffectiveRetention(global Global) *RetentionPolicy {
	if s.Retention != nil {
		return s.Retention
	}
	if !global.Retention.IsEmpty() {
		return &global.Retention
	}
	return nil
}

// Root is the decoded form of the entire TOML document.
type Root struct {
	Global     Global      `toml:"global"`
	BackupSets []BackupSet `toml:"backup_set"`
}

// Load reads and decodes the TOML file at path, expands "~" path fields
// relative to home, applies defaults, and validates the result. An absent
// file decodes to a valid empty Root (spec §3: "the list of sets may be
// empty (valid empty config)") only when path does not exist — any other
// read or parse error is returned.
func Load(path string, home string) (*Root, error) {
	var root Root
	root.Global.DebounceSeconds = DefaultDebounceSeconds

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &root, nil
		}
		return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
	}

	if _, err := toml.DecodeFile(path, &root); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if root.Global.DebounceSeconds == 0 {
		root.Global.DebounceSeconds = DefaultDebounceSeconds
	}

	root.expandPaths(home)

	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &root, nil
}

// expandPaths expands a leading "~" in every set's source/sources/target.
func (r *Root) expandPaths(home string) {
	for i := range r.BackupSets {
		s := &r.BackupSets[i]
		if s.Source != "" {
			s.Source = paths.ExpandTilde(s.Source, home)
		}
		for j, src := range s.Sources {
			s.Sources[j] = paths.ExpandTilde(src, home)
		}
		s.Target = paths.ExpandTilde(s.Target, home)
	}
}

// Validate enforces spec §3's invariants: unique set names; source/sources
// mutually exclusive with at least one present; target required.
func (r *Root) Validate() error {
	seen := make(map[string]struct{}, len(r.BackupSets))
	for _, s := range r.BackupSets {
		if s.Name == "" {
			return fmt.Errorf("backup set has no name")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate backup set name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		hasSource := s.Source != ""
		hasSources := len(s.Sources) > 0
		if hasSource && hasSources {
			return fmt.Errorf("backup set %q: source and sources are mutually exclusive", s.Name)
		}
		if !hasSource && !hasSources {
			return fmt.Errorf("backup set %q: one of source or sources is required", s.Name)
		}
		if s.Target == "" {
			return fmt.Errorf("backup set %q: target is required", s.Name)
		}
	}
	return nil
}

// FindSet returns the BackupSet with the given name, or ok=false.
func (r *Root) FindSet(name string) (BackupSet, bool) {
	for _, s := range r.BackupSets {
		if s.Name == name {
			return s, true
		}
	}
	return BackupSet{}, false
}
