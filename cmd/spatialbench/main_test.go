package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBenchTableMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	points := synthetic(r, 5000)
	grid := boundsOf(points)
	windows := randomWindows(r, grid, 50, 0.05)
	o := options{compression: "zstd", blockSize: 512, nodeSize: 256}

	for _, index := range []string{"key", "curve"} {
		res, err := benchTable(o, t.TempDir(), index, grid, points, windows)
		require.NoError(t, err)
		require.Zero(t, res.Mismatches, index)
		require.Greater(t, res.Results, 0, index)
		require.GreaterOrEqual(t, res.IndexHeight, 2, index)
	}
}

func TestPebbleBaselineMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	points := synthetic(r, 3000)
	grid := boundsOf(points)
	windows := randomWindows(r, grid, 30, 0.05)

	res, err := benchPebble(filepath.Join(t.TempDir(), "pebble"), grid, points, windows)
	require.NoError(t, err)
	require.Zero(t, res.Mismatches)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	doc := "id,x,y\n10,1.5,2.5\n11,-3,4\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	points, err := loadCSV(path)
	require.NoError(t, err)
	require.Equal(t, []point{{10, 1.5, 2.5}, {11, -3, 4}}, points)

	require.NoError(t, os.WriteFile(path, []byte("1,2\n3,4\n"), 0o644))
	points, err = loadCSV(path)
	require.NoError(t, err)
	require.Equal(t, []point{{0, 1, 2}, {1, 3, 4}}, points)

	require.NoError(t, os.WriteFile(path, []byte("1,2\nx,y\n"), 0o644))
	_, err = loadCSV(path)
	require.Error(t, err)
}
