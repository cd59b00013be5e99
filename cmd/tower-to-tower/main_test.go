package main

import (
	"context"
	"encoding/csv"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"rfcoverage/internal/fakeserver"
	"rfcoverage/internal/logging"
	"rfcoverage/internal/pairs"
	"rfcoverage/internal/types"
)

func useFakeService(t *testing.T) {
	t.Helper()
	srv := fakeserver.New(fakeserver.Config{UID: "20935", APIKey: "k3y", Logger: logging.Discard()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CLOUDRF_SERVER", ts.URL)
	t.Setenv("CLOUDRF_API_URL", ts.URL)
	t.Setenv("CLOUDRF_UID", "20935")
	t.Setenv("CLOUDRF_API_KEY", "k3y")
	t.Setenv("PAIR_DELAY", "0s")
}

func writeTowers(t *testing.T, towers []types.Tower) string {
	t.Helper()
	b, err := yaml.Marshal(map[string]any{"towers": towers})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "towers.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRun_WritesPairTable(t *testing.T) {
	useFakeService(t)
	towers := append(fakeserver.SampleTowers("Lakeside"), fakeserver.SampleTowers("Hillcrest")[0])
	out := filepath.Join(t.TempDir(), "t2t")

	require.NoError(t, run(context.Background(), writeTowers(t, towers), "Lakeside", out, ""))

	f, err := os.Open(filepath.Join(out, pairs.FileName))
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 1+6, "header plus every ordered pair of the three Lakeside towers")
}

func TestRun_NeedsTwoTowers(t *testing.T) {
	useFakeService(t)
	path := writeTowers(t, fakeserver.SampleTowers("Lakeside")[:1])

	err := run(context.Background(), path, "", t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two towers")
}
