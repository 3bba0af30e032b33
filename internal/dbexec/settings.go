package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Settings are transaction-local configuration values applied at the start of
// every request transaction. Role switches the current role; Values are
// arbitrary custom settings such as "app.tenant_id".
type Settings struct {
	Role   string
	Values map[string]string
}

// IsZero reports whether there is nothing to apply.
func (s Settings) IsZero() bool {
	return s.Role == "" && len(s.Values) == 0
}

func (s Settings) apply(ctx context.Context, tx *sql.Tx) error {
	if s.Role != "" {
		if _, err := tx.ExecContext(ctx, "select set_config('role', $1, true)", s.Role); err != nil {
			return fmt.Errorf("failed to set role %s: %w", s.Role, err)
		}
	}
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "select set_config($1, $2, true)", k, s.Values[k]); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return nil
}
