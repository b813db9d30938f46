package supervisor

import (
	"runtime"
	"sort"
	"strings"
)

// MergeEnv returns base with overrides applied. Existing keys keep their
// position and take the override value; new keys are appended in sorted
// order so the result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))

	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		norm := normalizeKey(key)
		if i, seen := index[norm]; seen {
			// Later duplicates in base win, as they do for exec.
			out[i] = kv
			continue
		}
		index[norm] = len(out)
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		kv := k + "=" + overrides[k]
		if i, ok := index[normalizeKey(k)]; ok {
			out[i] = kv
			continue
		}
		index[normalizeKey(k)] = len(out)
		out = append(out, kv)
	}
	return out
}

// LookupEnv finds key in an environment list.
func LookupEnv(env []string, key string) (string, bool) {
	want := normalizeKey(key)
	value, found := "", false
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && normalizeKey(k) == want {
			value, found = v, true
		}
	}
	return value, found
}

// normalizeKey folds case on Windows, where variable names are
// case-insensitive.
func normalizeKey(key string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(key)
	}
	return key
}
