// SPDX-License-Identifier: GPL-2.0-or-later

package log

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndQuery(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "logs.db"), &sync.WaitGroup{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Init(ctx))

	logger := NewLogger(&sync.WaitGroup{})
	logger.Start(ctx)
	go store.Run(ctx, logger)

	logger.Info().Src("sprite").Clip("clipA").Msg("first")
	logger.Error().Src("export").Clip("clipB").Msg("second")

	require.Eventually(t, func() bool {
		entries, err := store.Query(Query{})
		return err == nil && len(entries) == 2
	}, time.Second, time.Millisecond)

	entries, err := store.Query(Query{Levels: []Level{LevelError}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "second", entries[0].Msg)
}

func TestStoreEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "logs.db"), &sync.WaitGroup{})
	store.maxKeys = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Init(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.save(Log{Time: UnixMicro(i + 1), Msg: "m"}))
	}

	entries, err := store.Query(Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
