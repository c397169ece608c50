package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Gamemanuel/BathPass/internal/storage"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayCacheRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	prev := storage.RedisClient
	storage.RedisClient = client
	defer func() { storage.RedisClient = prev }()

	payload := TVDisplayResponse{Settings: TVSettingsItem{Enabled: true, RotationSeconds: 10}}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	key := displayCacheKey(42)
	mock.ExpectSet(key, string(body), time.Minute).SetVal("OK")
	cacheDisplay(42, payload, time.Minute)

	mock.ExpectGet(key).SetVal(string(body))
	var out TVDisplayResponse
	assert.True(t, cachedDisplay(42, &out))
	assert.Equal(t, payload, out)

	mock.ExpectDel(key).SetVal(1)
	InvalidateDisplayCache(42)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisplayCacheMissAndDisabled(t *testing.T) {
	client, mock := redismock.NewClientMock()
	prev := storage.RedisClient
	storage.RedisClient = client
	defer func() { storage.RedisClient = prev }()

	mock.ExpectGet(displayCacheKey(7)).RedisNil()
	var out TVDisplayResponse
	assert.False(t, cachedDisplay(7, &out))
	assert.NoError(t, mock.ExpectationsWereMet())

	// With Redis disabled every helper is a silent no-op.
	storage.RedisClient = nil
	assert.False(t, cachedDisplay(7, &out))
	cacheDisplay(7, out, time.Minute)
	InvalidateDisplayCache(7)
}
