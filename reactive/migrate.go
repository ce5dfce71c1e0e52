package reactive

import (
	"context"
	"fmt"
	"sort"
)

// Migration is one schema step, applied when PRAGMA user_version is below
// Version.
type Migration struct {
	Version int
	SQL     string
}

// UserVersion returns PRAGMA user_version.
func (s *Store) UserVersion(ctx context.Context) (int, error) {
	v, ok, err := QueryValueAs[int64](ctx, s, "PRAGMA user_version")
	if err != nil || !ok {
		return 0, err
	}
	return int(v), nil
}

// Migrate applies pending migrations in version order, each in its own
// transaction together with the user_version bump. Subscribers of the
// tables a migration touches are notified as for Exec.
func (s *Store) Migrate(ctx context.Context, migrations []Migration) error {
	if s.closed {
		return ErrClosed
	}
	current, err := s.UserVersion(ctx)
	if err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		err := s.Transaction(ctx, func(ctx context.Context) error {
			if err := s.Exec(ctx, m.SQL); err != nil {
				return err
			}
			return s.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version))
		})
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.Version, err)
		}
		s.logger.Debug("migration applied", "version", m.Version)
	}
	return nil
}
