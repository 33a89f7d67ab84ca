package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/researchgraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	cases := []Config{
		{Kind: "memory"},
		{Kind: "file", DSN: filepath.Join(t.TempDir(), "cps")},
		{Kind: "redis", DSN: mr.Addr()},
		{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "cps.db")},
	}
	for _, cfg := range cases {
		t.Run(cfg.Kind, func(t *testing.T) {
			s, closeFn, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			defer closeFn()

			ctx := context.Background()
			require.NoError(t, s.Save(ctx, &store.Checkpoint{RunID: "run-1", Cursor: "start"}))
			cp, err := s.Load(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, "start", cp.Cursor)
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Kind: "cassandra"})
	assert.ErrorContains(t, err, "cassandra")
}
