package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sodav/detection-core/internal/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := logger.DefaultConfig()
	cfg.Colorize = false
	st, err := Open(":memory:", logger.New(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
