package reconciler

import (
	"fmt"
	"sort"
	"strings"
)

// ParseAssignments parses comma-joined KEY=VALUE pairs. Values may contain
// '=' but not ','. An empty string yields nil.
func ParseAssignments(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	env := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t\n") {
			return nil, fmt.Errorf("%w: environment entry %q is not key=value", ErrConfigInvalid, pair)
		}
		env[key] = value
	}
	return env, nil
}

// ParseEnvironmentFile reads KEY=VALUE lines literally: the key is what
// precedes the first '=', the value everything after it. Nothing is expanded
// or unquoted. Comments and lines without a key are not assignments.
func ParseEnvironmentFile(data []byte) map[string]string {
	env := make(map[string]string)
	for _, line := range splitLines(data) {
		if key, value, ok := parseAssignment(line); ok {
			env[key] = value
		}
	}
	return env
}

func parseAssignment(line string) (key, value string, ok bool) {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return "", "", false
	}
	key, value, ok = strings.Cut(line, "=")
	if !ok || key == "" {
		return "", "", false
	}
	return key, value, true
}

func splitLines(data []byte) []string {
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// UpdateEnvironment renders the file content after merging updates into
// data. Assignments to updated keys are rewritten where they stand, repeats
// of them dropped; every other line is kept as written. Keys new to the file
// are appended in sorted order.
func UpdateEnvironment(data []byte, updates map[string]string) string {
	merged := MergeEnvironment(ParseEnvironmentFile(data), updates)

	var out []string
	written := make(map[string]bool, len(updates))
	for _, line := range splitLines(data) {
		key, _, ok := parseAssignment(line)
		if _, updated := updates[key]; ok && updated {
			if written[key] {
				continue
			}
			line = key + "=" + merged[key]
			written[key] = true
		}
		out = append(out, line)
	}

	added := make(map[string]string)
	for k := range updates {
		if !written[k] {
			added[k] = merged[k]
		}
	}
	if len(added) > 0 {
		out = append(out, FormatEnvironment(added))
	}
	return strings.Join(out, "\n")
}

// MergeEnvironment overlays updates on existing. On collision updates win;
// keys only in existing are kept.
func MergeEnvironment(existing, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// FormatEnvironment renders KEY=VALUE lines joined by newlines, sorted by key
func FormatEnvironment(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + env[k]
	}
	return strings.Join(lines, "\n")
}

// missing returns the desired entries applied does not carry with the same value
func missing(desired, applied map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range desired {
		if cur, ok := applied[k]; !ok || cur != v {
			out[k] = v
		}
	}
	return out
}
