package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/logger"
)

func serverConfig(symbols, workers int, live, brokerage time.Duration) *config.Config {
	cfg := &config.Config{Port: "0", Env: "test"}
	for i := 0; i < symbols; i++ {
		cfg.Collector.Symbols = append(cfg.Collector.Symbols, "SPY")
	}
	cfg.Collector.Workers = workers
	cfg.Router.LiveTimeout = live
	cfg.Schwab.Timeout = brokerage
	return cfg
}

func TestWriteTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want time.Duration
	}{
		{"live timeout dominates", serverConfig(2, 4, 8*time.Second, 5*time.Second), 23 * time.Second},
		{"collection rounds dominate", serverConfig(9, 4, 8*time.Second, 10*time.Second), 45 * time.Second},
		{"zero workers run serially", serverConfig(3, 0, 8*time.Second, 10*time.Second), 45 * time.Second},
		{"no symbols", serverConfig(0, 4, 8*time.Second, 10*time.Second), 23 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WriteTimeout(tt.cfg))
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	cfg := serverConfig(4, 2, 8*time.Second, 10*time.Second)
	srv := New(cfg, logger.Nop(), http.NotFoundHandler())

	assert.Equal(t, 35*time.Second, srv.ShutdownGrace())
	assert.Equal(t, ":0", srv.httpServer.Addr)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
