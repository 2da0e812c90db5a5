package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/zcurve"
)

type point struct {
	id   uint64
	x, y float64
}

// synthetic draws clustered points over the lon/lat domain: half uniform,
// half around a few hot spots.
func synthetic(r *rand.Rand, n int) []point {
	type hotspot struct{ x, y, spread float64 }
	hot := make([]hotspot, 8)
	for i := range hot {
		hot[i] = hotspot{r.Float64()*300 - 150, r.Float64()*140 - 70, 0.5 + r.Float64()*4}
	}

	points := make([]point, n)
	for i := range points {
		var x, y float64
		if i%2 == 0 {
			x, y = r.Float64()*360-180, r.Float64()*180-90
		} else {
			h := hot[r.Intn(len(hot))]
			x = clamp(h.x+r.NormFloat64()*h.spread, -180, 180)
			y = clamp(h.y+r.NormFloat64()*h.spread, -90, 90)
		}
		points[i] = point{id: uint64(i), x: x, y: y}
	}
	return points
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

// loadCSV reads "x,y" or "id,x,y" rows. A leading row that does not parse
// is taken as a header.
func loadCSV(path string) ([]point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var points []point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		p, err := parseRecord(rec, uint64(len(points)))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		points = append(points, p)
	}
}

func parseRecord(rec []string, next uint64) (point, error) {
	p := point{id: next}
	var err error
	switch len(rec) {
	case 2:
	case 3:
		if p.id, err = strconv.ParseUint(rec[0], 10, 64); err != nil {
			return p, err
		}
		rec = rec[1:]
	default:
		return p, fmt.Errorf("want 2 or 3 fields, got %d", len(rec))
	}
	if p.x, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return p, err
	}
	if p.y, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return p, err
	}
	return p, nil
}

// boundsOf returns the grid spanning every point, slightly padded so the
// domain is never empty.
func boundsOf(points []point) zcurve.Grid {
	g := zcurve.Grid{
		XMin: math.Inf(1), XMax: math.Inf(-1),
		YMin: math.Inf(1), YMax: math.Inf(-1),
		N:    zcurve.DefaultResolution,
	}
	for _, p := range points {
		g.XMin, g.XMax = math.Min(g.XMin, p.x), math.Max(g.XMax, p.x)
		g.YMin, g.YMax = math.Min(g.YMin, p.y), math.Max(g.YMax, p.y)
	}
	const pad = 1e-9
	g.XMin, g.XMax = g.XMin-pad, g.XMax+pad
	g.YMin, g.YMax = g.YMin-pad, g.YMax+pad
	return g
}

func randomWindows(r *rand.Rand, g zcurve.Grid, n int, side float64) []geometry.Box {
	w, h := (g.XMax-g.XMin)*side, (g.YMax-g.YMin)*side
	out := make([]geometry.Box, n)
	for i := range out {
		x := g.XMin + r.Float64()*(g.XMax-g.XMin-w)
		y := g.YMin + r.Float64()*(g.YMax-g.YMin-h)
		out[i] = geometry.Window(x, x+w, y, y+h)
	}
	return out
}
