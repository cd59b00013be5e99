package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"rfcoverage/internal/fakeserver"
	"rfcoverage/internal/logging"
	"rfcoverage/internal/types"
)

func useFakeService(t *testing.T, apiKey string) *fakeserver.Server {
	t.Helper()
	srv := fakeserver.New(fakeserver.Config{UID: "20935", APIKey: "k3y", Logger: logging.Discard()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CLOUDRF_SERVER", ts.URL)
	t.Setenv("CLOUDRF_API_URL", ts.URL)
	t.Setenv("CLOUDRF_UID", "20935")
	t.Setenv("CLOUDRF_API_KEY", apiKey)
	t.Setenv("NETWORK_DELAY", "0s")
	return srv
}

func writeTowers(t *testing.T, towers []types.Tower) string {
	t.Helper()
	b, err := yaml.Marshal(map[string]any{"towers": towers})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "towers.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRun_SubmitsEveryTower(t *testing.T) {
	srv := useFakeService(t, "k3y")
	path := writeTowers(t, fakeserver.SampleTowers("Lakeside"))

	require.NoError(t, run(context.Background(), path, "Lakeside", ""))
	_, _, area := srv.Calls()
	assert.EqualValues(t, 3, area)
}

func TestRun_ReportsFailedTowers(t *testing.T) {
	useFakeService(t, "wrong")
	path := writeTowers(t, fakeserver.SampleTowers("Lakeside"))

	err := run(context.Background(), path, "", "")
	require.Error(t, err)
	assert.Equal(t, "3 of 3 towers failed", err.Error())
}

func TestRun_NoTowersForNetwork(t *testing.T) {
	useFakeService(t, "k3y")
	path := writeTowers(t, fakeserver.SampleTowers("Lakeside"))

	err := run(context.Background(), path, "Hillcrest", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no towers to submit")
}
