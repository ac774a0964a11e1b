package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/pkg/config"
)

func TestNew_EmptyURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestNew_BadURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{URL: "::not a url::"})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, config.DatabaseConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.TotalConns, int32(0))
}
