package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-mirror-bot/internal/store"
	"trade-mirror-bot/internal/tradelog"
	"trade-mirror-bot/internal/types"
)

func factoryConfig(t *testing.T) *store.Config {
	cfg := store.Default()
	cfg.DataDir = t.TempDir()
	cfg.Source.Driver = "STATIC"
	return cfg
}

func TestFactoryBuildsTask(t *testing.T) {
	cfg := factoryConfig(t)
	factory := NewFactory(cfg, tradelog.New(filepath.Join(cfg.DataDir, "logs")))

	task, err := factory(context.Background(), types.TaskConfig{
		ID:                  "alice",
		Link:                "http://127.0.0.1:1/lead",
		APIKey:              "k",
		APISecret:           "s",
		Leverage:            3,
		TraderPortfolioSize: 100,
		YourPortfolioSize:   10,
	})
	require.NoError(t, err)

	mt, ok := task.(*Task)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.DataDir, "trade_history_alice.json"), mt.opts.SnapshotPath)
	assert.Equal(t, "http://127.0.0.1:1/lead", mt.opts.Page.Link)
	assert.False(t, task.Status().Running)
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	cfg := factoryConfig(t)
	cfg.Source.Driver = "LYNX"

	_, err := NewFactory(cfg, nil)(context.Background(), liveTaskConfig())
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrInvalidConfig)
}

func TestFactoryRejectsInvalidConfig(t *testing.T) {
	cfg := factoryConfig(t)

	_, err := NewFactory(cfg, nil)(context.Background(), types.TaskConfig{ID: "x"})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func liveTaskConfig() types.TaskConfig {
	return types.TaskConfig{
		ID:                  "bob",
		Link:                "http://127.0.0.1:1/lead",
		APIKey:              "revoked",
		APISecret:           "s",
		Leverage:            2,
		TraderPortfolioSize: 100,
		YourPortfolioSize:   10,
	}
}

func TestFactoryLiveRejectsBadCredentials(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	}))
	defer srv.Close()

	cfg := factoryConfig(t)
	cfg.Mode = "LIVE"
	cfg.Exchange.BaseURL = srv.URL

	_, err := NewFactory(cfg, nil)(context.Background(), liveTaskConfig())
	require.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.Equal(t, 1, calls)
}

func TestFactoryLiveAcceptsGoodCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"asset":"USDT","balance":"10.00","availableBalance":"10.00"}]`))
	}))
	defer srv.Close()

	cfg := factoryConfig(t)
	cfg.Mode = "LIVE"
	cfg.Exchange.BaseURL = srv.URL

	task, err := NewFactory(cfg, nil)(context.Background(), liveTaskConfig())
	require.NoError(t, err)
	assert.Equal(t, "bob", task.Status().ID)
}
