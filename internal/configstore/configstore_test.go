package configstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_SeedsCalibrationOffset(t *testing.T) {
	s := openTestStore(t)
	offset, err := s.GetCalibrationOffset(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.0, offset, "seeded default calibration offset")
}

func TestReadProperties_ExcludesRequestedNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_properties (section, property, value) VALUES
			('ref-device', 'name', 'stess1'),
			('ref-device', 'zp', '20.44'),
			('ref-device', 'endpoint', 'serial:/dev/ttyUSB0'),
			('ref-device', 'old_proto', 'true')`)
	require.NoError(t, err, "seed rows")

	props, err := s.ReadProperties(ctx, "ref-device", map[string]struct{}{"endpoint": {}, "old_proto": {}})
	require.NoError(t, err)
	require.Len(t, props, 2)
	for _, p := range props {
		require.NotContains(t, []string{"endpoint", "old_proto"}, p.Name, "excluded property leaked through")
	}
}

func TestReadSection_EmptySectionReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	props, err := s.ReadSection(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.Empty(t, props)
}
