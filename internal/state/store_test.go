package state

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAndFindResumable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Init(ctx, dir, "deploy")
	require.NoError(t, err)
	require.NotEmpty(t, store.ID)
	defer store.Close()

	id, err := FindResumable(ctx, dir, "deploy")
	require.NoError(t, err)
	require.Equal(t, store.ID, id)

	// A different kind has nothing to resume.
	_, err = FindResumable(ctx, dir, "upgrade")
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestCompleteSealsAgainstResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Init(ctx, dir, "deploy")
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx))
	require.NoError(t, store.Close())

	_, err = FindResumable(ctx, dir, "deploy")
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestLoadRestoresStepsAndKV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Init(ctx, dir, "upgrade")
	require.NoError(t, err)
	id := store.ID

	require.NoError(t, store.MarkStepDone(ctx, "upgrade_cp_10.0.0.1"))
	require.NoError(t, store.Set(ctx, "target_version", "1.32.5"))
	require.NoError(t, store.Close())

	loaded, err := Load(ctx, dir, "upgrade", id)
	require.NoError(t, err)
	defer loaded.Close()

	require.True(t, loaded.IsStepDone("upgrade_cp_10.0.0.1"))
	require.False(t, loaded.IsStepDone("upgrade_cp_10.0.0.2"))

	value, ok := loaded.Get("target_version")
	require.True(t, ok)
	require.Equal(t, "1.32.5", value)
}

func TestLoadMissingState(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), "deploy", "nope")
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestMarkStepDoneIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := Init(ctx, t.TempDir(), "deploy")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.MarkStepDone(ctx, "join_worker_w1"))
	require.NoError(t, store.MarkStepDone(ctx, "join_worker_w1"))
	require.True(t, store.IsStepDone("join_worker_w1"))
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := Init(ctx, t.TempDir(), "deploy")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", "v1"))
	require.NoError(t, store.Set(ctx, "k", "v2"))

	value, ok := store.Get("k")
	require.True(t, ok)
	require.Equal(t, "v2", value)
}

// Parallel step workers mark their steps done concurrently, one label per
// node; the store must tolerate that without corrupting the done set.
func TestMarkStepDoneFromConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Init(ctx, dir, "deploy")
	require.NoError(t, err)
	id := store.ID

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			label := fmt.Sprintf("prepare/root@10.0.0.%d", i+1)
			errs[i] = store.MarkStepDone(ctx, label)
			store.IsStepDone(label)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	for i := 0; i < workers; i++ {
		require.True(t, store.IsStepDone(fmt.Sprintf("prepare/root@10.0.0.%d", i+1)))
	}
	require.NoError(t, store.Close())

	// Every label reached the database, not just the in-memory set.
	loaded, err := Load(ctx, dir, "deploy", id)
	require.NoError(t, err)
	defer loaded.Close()
	for i := 0; i < workers; i++ {
		require.True(t, loaded.IsStepDone(fmt.Sprintf("prepare/root@10.0.0.%d", i+1)))
	}
}

func TestFindResumablePrefersUnsealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := Init(ctx, dir, "deploy")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Init(ctx, dir, "deploy")
	require.NoError(t, err)
	require.NoError(t, second.Complete(ctx))
	require.NoError(t, second.Close())

	// The sealed (newer) generation is skipped in favor of the older
	// unsealed one.
	id, err := FindResumable(ctx, dir, "deploy")
	require.NoError(t, err)
	require.Equal(t, first.ID, id)
}
