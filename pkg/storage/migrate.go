package storage

import "fmt"

// MigrateResult summarizes a copy between two stores
type MigrateResult struct {
	Scopes  int
	Keys    int
	Skipped []string
}

// Migrate copies every scope of src into dst, replacing scopes dst already
// holds. Scopes in skip are left out. With dryRun nothing is written.
func Migrate(src, dst Store, dryRun bool, skip ...string) (MigrateResult, error) {
	var res MigrateResult

	scopes, err := src.Scopes()
	if err != nil {
		return res, fmt.Errorf("failed to list source scopes: %w", err)
	}

	excluded := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		excluded[s] = struct{}{}
	}

	for _, scope := range scopes {
		if _, ok := excluded[scope]; ok {
			res.Skipped = append(res.Skipped, scope)
			continue
		}

		kv, err := src.Get(scope)
		if err != nil {
			return res, fmt.Errorf("failed to read scope %s: %w", scope, err)
		}
		if !dryRun {
			if err := dst.Replace(scope, kv); err != nil {
				return res, fmt.Errorf("failed to write scope %s: %w", scope, err)
			}
		}
		res.Scopes++
		res.Keys += len(kv)
	}

	return res, nil
}
