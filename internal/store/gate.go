package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GateValue reads one persisted gate flag. Returns "" when the flag has never
// been written.
func (s *Store) GateValue(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM gate_flags WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read gate %s: %w", name, err)
	}
	return value, nil
}

// UpsertGateValue writes one gate flag, replacing any existing value.
func (s *Store) UpsertGateValue(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gate_flags (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("write gate %s: %w", name, err)
	}
	return nil
}

// GateFlags returns every persisted gate flag by name, for status output.
func (s *Store) GateFlags(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM gate_flags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan gate: %w", err)
		}
		flags[name] = value
	}
	return flags, rows.Err()
}
