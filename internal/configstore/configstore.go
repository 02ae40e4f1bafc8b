// Package configstore is the sqlite-backed ConfigReader adapter: an
// external collaborator outside the calibration core, holding the
// ref-device section and the calibration aggregation bias. It is not
// depended on by the core itself, only by callers that wire a concrete
// store into discovery.ConfigReader.
package configstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tessw/photocal/internal/photometer/discovery"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a database/sql-backed implementation of discovery.ConfigReader,
// reading from a single config_properties(section, property, value) table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and applies
// any outstanding migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("configstore: open %q: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ReadSection implements discovery.ConfigReader.
func (s *Store) ReadSection(ctx context.Context, section string) ([]discovery.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT property, value FROM config_properties WHERE section = ? ORDER BY property`, section)
	if err != nil {
		return nil, fmt.Errorf("configstore: read section %q: %w", section, err)
	}
	defer rows.Close()
	return scanProperties(rows)
}

// ReadProperties implements discovery.ConfigReader, filtering out any
// property present in exclude.
func (s *Store) ReadProperties(ctx context.Context, section string, exclude map[string]struct{}) ([]discovery.Property, error) {
	all, err := s.ReadSection(ctx, section)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if _, skip := exclude[p.Name]; skip {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// GetCalibrationOffset reads the calibration.offset bias row, defaulting to
// 0.0 if absent.
func (s *Store) GetCalibrationOffset(ctx context.Context) (float64, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM config_properties WHERE section = 'calibration' AND property = 'offset'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0.0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("configstore: read calibration offset: %w", err)
	}
	var offset float64
	if _, err := fmt.Sscanf(value, "%g", &offset); err != nil {
		return 0, fmt.Errorf("configstore: calibration offset %q is not numeric: %w", value, err)
	}
	return offset, nil
}

func scanProperties(rows *sql.Rows) ([]discovery.Property, error) {
	var out []discovery.Property
	for rows.Next() {
		var p discovery.Property
		if err := rows.Scan(&p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("configstore: scan property row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
