package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/store"
)

func TestOpen_SQLite(t *testing.T) {
	st, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "oracle", "x")
	assert.ErrorContains(t, err, "unknown database driver")
}
