package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hwidlock/models"
	"github.com/example/hwidlock/store"
)

func TestGenerateThenValidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.admin.Generate(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, res.Keys, 3)
	assert.Equal(t, 3, res.TotalKeys)
	assert.Zero(t, res.Skipped)
	for _, k := range res.Keys {
		assert.Len(t, k, DefaultKeyLength)
		for _, r := range k {
			assert.True(t, strings.ContainsRune(KeyAlphabet, r), "unexpected symbol %q", r)
		}
	}

	_, err = env.validate.Validate(ctx, ValidationRequest{Key: res.Keys[0], HWID: "device-123"})
	require.NoError(t, err)

	list, err := env.admin.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 1, list.Used)
	assert.Equal(t, 2, list.Unused)

	for _, view := range list.Keys {
		if view.Key == res.Keys[0] {
			assert.True(t, view.IsUsed)
			assert.Equal(t, int64(1), view.UsageCount)
			require.NotNil(t, view.LastUsed)
			continue
		}
		assert.False(t, view.IsUsed)
		assert.Zero(t, view.UsageCount)
	}
}

func TestGenerateClampsCount(t *testing.T) {
	env := newTestEnv(t)
	env.admin.MaxGenerate = 5
	ctx := context.Background()

	res, err := env.admin.Generate(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, res.Keys, 1)

	res, err = env.admin.Generate(ctx, 500, "")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Requested)
	assert.Len(t, res.Keys, 5)
	assert.Equal(t, 6, res.TotalKeys)
}

func TestGenerateCustomKey(t *testing.T) {
	env := newTestEnv(t, "MASTER")
	ctx := context.Background()

	res, err := env.admin.Generate(ctx, 2, "MY-KEY")
	require.NoError(t, err)
	require.Len(t, res.Keys, 2)
	assert.Equal(t, "MY-KEY", res.Keys[0])

	rec, err := env.store.GetKey(ctx, "MY-KEY")
	require.NoError(t, err)
	assert.True(t, rec.Custom)
	assert.True(t, rec.Active)

	// Collisions with stored or reserved keys skip the slot.
	res, err = env.admin.Generate(ctx, 1, "MY-KEY")
	require.NoError(t, err)
	assert.Empty(t, res.Keys)
	assert.Equal(t, 1, res.Skipped)

	res, err = env.admin.Generate(ctx, 1, "MASTER")
	require.NoError(t, err)
	assert.Empty(t, res.Keys)
	assert.Equal(t, 1, res.Skipped)
}

func TestGenerateRejectsBadCustomKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.admin.Generate(ctx, 1, "has space")
	requireKind(t, err, KindBadRequest)

	_, err = env.admin.Generate(ctx, 1, strings.Repeat("X", MaxCustomKeyLength+1))
	requireKind(t, err, KindBadRequest)

	keys, err := env.store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// repeatReader always yields the same byte, so every draw produces the
// same key.
type repeatReader byte

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func TestGenerateSkipsWhenDrawsCollide(t *testing.T) {
	env := newTestEnv(t)
	env.admin.Keygen = &KeyGenerator{Length: 4, Rand: repeatReader(0)}
	ctx := context.Background()

	res, err := env.admin.Generate(ctx, 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA"}, res.Keys)
	assert.Equal(t, 2, res.Skipped)
}

func TestDeleteKeyCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addKey(t, "K1")
	env.addKey(t, "K2")

	_, err := env.validate.Validate(ctx, ValidationRequest{Key: "K1", HWID: "device"})
	require.NoError(t, err)

	remaining, err := env.admin.DeleteKey(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	page, err := env.admin.Logs(ctx, "K1", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Logs)

	// The device slot is free again.
	_, err = env.validate.Validate(ctx, ValidationRequest{Key: "K2", HWID: "device"})
	require.NoError(t, err)

	_, err = env.validate.Validate(ctx, ValidationRequest{Key: "K1", HWID: "device"})
	requireKind(t, err, KindInvalidKey)
}

func TestAdminKeyOperationsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.admin.DeleteKey(ctx, "NOPE")
	requireKind(t, err, KindNotFound)
	requireKind(t, env.admin.ResetKey(ctx, "NOPE"), KindNotFound)
	requireKind(t, env.admin.SetActive(ctx, "NOPE", false), KindNotFound)

	_, err = env.admin.DeleteKey(ctx, "")
	requireKind(t, err, KindBadRequest)
}

func TestResetUnboundKeySucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.addKey(t, "K1")
	require.NoError(t, env.admin.ResetKey(context.Background(), "K1"))
}

func TestLogsDefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < DefaultLogLimit+20; i++ {
		require.NoError(t, env.store.AppendLog(ctx, &models.UsageLogEntry{
			Key:       "K",
			Timestamp: fixedNow.Add(time.Duration(i) * time.Second),
			Type:      models.EntryTypeUser,
		}))
	}

	page, err := env.admin.Logs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Logs, DefaultLogLimit)
	assert.Equal(t, int64(DefaultLogLimit+20), page.TotalLogs)
	assert.True(t, page.Logs[0].Timestamp.After(page.Logs[1].Timestamp))

	page, err = env.admin.Logs(ctx, "OTHER", 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Logs)
	assert.Empty(t, page.Logs)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addKey(t, "K1")
	env.addKey(t, "K2")
	env.addKey(t, "K3")

	_, err := env.validate.Validate(ctx, ValidationRequest{Key: "K1", HWID: "a", UserInfo: UserInfo{UserID: "u1"}})
	require.NoError(t, err)
	_, err = env.validate.Validate(ctx, ValidationRequest{Key: "K2", HWID: "b", UserInfo: UserInfo{UserID: "u2"}})
	require.NoError(t, err)
	_, err = env.validate.Validate(ctx, ValidationRequest{Key: "K1", HWID: "a", UserInfo: UserInfo{UserID: "u1"}})
	require.NoError(t, err)

	old := fixedNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, env.store.AppendLog(ctx, &models.UsageLogEntry{Key: "K3", HWID: "c", UserID: "u3", Timestamp: old, Type: models.EntryTypeUser}))

	stats, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalKeys)
	assert.Equal(t, 2, stats.UsedKeys)
	assert.Equal(t, 1, stats.UnusedKeys)
	assert.Equal(t, 4, stats.TotalUsage)
	assert.Equal(t, 3, stats.TodayUsage)
	assert.Equal(t, 3, stats.WeekUsage)
	assert.Equal(t, 3, stats.UniqueUsers)
	assert.Equal(t, 2, stats.UniqueHWIDs)
	assert.Equal(t, 3, stats.LoggedHWIDs)
	require.NotNil(t, stats.LastActivity)
	assert.True(t, stats.LastActivity.Equal(fixedNow))
}

func TestStatsEmpty(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.admin.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalKeys)
	assert.Zero(t, stats.TotalUsage)
	assert.Nil(t, stats.LastActivity)
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.admin.UpdateSettings(Settings{MaxKeysPerHWID: 0})
	requireKind(t, err, KindBadRequest)
	assert.Equal(t, 1, env.admin.GetSettings().MaxKeysPerHWID)

	updated, err := env.admin.UpdateSettings(Settings{MaxKeysPerHWID: 3, AuditRejected: true})
	require.NoError(t, err)
	assert.Equal(t, updated, env.admin.GetSettings())
	assert.Equal(t, updated, env.validate.Settings.Get())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(store.ErrNotFound))
	assert.Equal(t, KindDuplicateKey, KindOf(store.ErrDuplicateKey))
	assert.Equal(t, KindHWIDMismatch, KindOf(newError(KindHWIDMismatch, "x")))
	assert.Equal(t, KindInternal, KindOf(store.ErrConflict))
	assert.Equal(t, Kind(""), KindOf(nil))
}
