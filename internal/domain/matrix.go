package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Builtin env var names injected into every job.
const (
	EnvRuntime = "GAUNTLET_RUNTIME"
	EnvJobName = "GAUNTLET_JOB"
)

// MatrixEntry is one row of the env matrix: an ordered set of KEY=value
// pairs. An empty value means "unpinned/latest" and is preserved as the
// empty string so install commands like `pip install numpy$NUMPY` degrade
// to unpinned installs.
type MatrixEntry struct {
	Raw  string
	Keys []string
	Vars Vars
}

// ExcludeRule removes one runtime+entry combination from the expansion.
type ExcludeRule struct {
	Runtime string
	Env     string // raw entry string, compared after normalization
}

// MatrixSpec is the env axis of a pipeline: global vars shared by all jobs,
// matrix entries (one job per entry per runtime) and excluded combinations.
type MatrixSpec struct {
	Global  Vars
	Entries []MatrixEntry
	Exclude []ExcludeRule
}

// ParseMatrixEntry parses a travis-style entry like
// "NUMPY=1.15 SCIPY= MATPLOTLIB=3.0" into an ordered MatrixEntry.
func ParseMatrixEntry(raw string) (MatrixEntry, error) {
	entry := MatrixEntry{Raw: raw, Vars: Vars{}}

	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return MatrixEntry{}, &OpError{
			Op:   "matrix.parse",
			Kind: KindInvalidConfig,
			Err:  errors.New("empty matrix entry"),
		}
	}

	for _, f := range fields {
		eq := strings.Index(f, "=")
		if eq <= 0 {
			return MatrixEntry{}, &OpError{
				Op:   "matrix.parse",
				Kind: KindInvalidConfig,
				Err:  fmt.Errorf("malformed pair %q (expected KEY=value)", f),
			}
		}

		key := f[:eq]
		val := f[eq+1:]
		if !validEnvKey(key) {
			return MatrixEntry{}, &OpError{
				Op:   "matrix.parse",
				Kind: KindInvalidConfig,
				Err:  fmt.Errorf("invalid variable name %q", key),
			}
		}
		if _, dup := entry.Vars[key]; dup {
			return MatrixEntry{}, &OpError{
				Op:   "matrix.parse",
				Kind: KindInvalidConfig,
				Err:  fmt.Errorf("duplicate variable %q", key),
			}
		}

		entry.Keys = append(entry.Keys, key)
		entry.Vars[key] = val
	}

	return entry, nil
}

// Normalized returns the entry in canonical form (sorted KEY=value pairs),
// used for exclude matching and display.
func (e MatrixEntry) Normalized() string {
	pairs := make([]string, 0, len(e.Vars))
	for k, v := range e.Vars {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}

// Job is one expanded matrix cell: a runtime axis value plus the merged
// variable set the job runs with.
type Job struct {
	Name    string
	Runtime string
	Entry   MatrixEntry
	Vars    Vars
}

// Expand produces the job list for the given runtime axis: one job per
// runtime x entry combination, minus excludes. Global vars are merged under
// entry vars; the runtime and job name builtins are set last.
//
// A pipeline with no runtimes gets the single axis value "". A pipeline with
// no entries gets one job per runtime carrying only global vars.
func (m MatrixSpec) Expand(runtimes []string) []Job {
	axis := runtimes
	if len(axis) == 0 {
		axis = []string{""}
	}

	entries := m.Entries
	if len(entries) == 0 {
		entries = []MatrixEntry{{Vars: Vars{}}}
	}

	excluded := make(map[string]bool, len(m.Exclude))
	for _, ex := range m.Exclude {
		entry, err := ParseMatrixEntry(ex.Env)
		key := ex.Runtime + "|"
		if err == nil {
			key += entry.Normalized()
		} else {
			key += strings.TrimSpace(ex.Env)
		}
		excluded[key] = true
	}

	var jobs []Job
	for _, rt := range axis {
		for i, entry := range entries {
			if excluded[rt+"|"+entry.Normalized()] {
				continue
			}

			name := fmt.Sprintf("#%d", i+1)
			if rt != "" {
				name = fmt.Sprintf("%s %s", rt, name)
			}

			vars := Merge(m.Global, entry.Vars)
			vars[EnvRuntime] = rt
			vars[EnvJobName] = name

			jobs = append(jobs, Job{
				Name:    name,
				Runtime: rt,
				Entry:   entry,
				Vars:    vars,
			})
		}
	}

	return jobs
}

// ConsistentKeys verifies that every matrix entry defines the same variable
// names, returning the offending entry index and the differing set when not.
func (m MatrixSpec) ConsistentKeys() (int, []string, bool) {
	if len(m.Entries) < 2 {
		return 0, nil, true
	}

	want := keySet(m.Entries[0].Keys)
	for i := 1; i < len(m.Entries); i++ {
		got := keySet(m.Entries[i].Keys)
		if diff := symmetricDiff(want, got); len(diff) > 0 {
			return i, diff, false
		}
	}
	return 0, nil, true
}

func validEnvKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func keySet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func symmetricDiff(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	for k := range b {
		if !a[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
