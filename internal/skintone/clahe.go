package skintone

import "math"

const histogramBins = 256

// equalizeLightness applies contrast-limited adaptive histogram equalization
// to an L* plane (0..100). Tile LUTs are blended bilinearly between tile
// centres; the outermost half-tiles clamp to the edge LUT.
func equalizeLightness(l []float64, width, height int, clipLimit float64, tiles int) []float64 {
	gx, gy := min(tiles, width), min(tiles, height)

	bins := make([]int, len(l))
	for i, v := range l {
		bins[i] = clampInt(int(v*2.55+0.5), 0, histogramBins-1)
	}

	tileX := make([]int, gx+1)
	for i := range tileX {
		tileX[i] = width * i / gx
	}
	tileY := make([]int, gy+1)
	for j := range tileY {
		tileY[j] = height * j / gy
	}

	luts := make([][][]float64, gy)
	for j := 0; j < gy; j++ {
		luts[j] = make([][]float64, gx)
		for i := 0; i < gx; i++ {
			luts[j][i] = tileLUT(bins, width, tileX[i], tileX[i+1], tileY[j], tileY[j+1], clipLimit)
		}
	}

	out := make([]float64, len(l))
	for y := 0; y < height; y++ {
		j0, j1, ty := gridNeighbours(y, height, gy)
		for x := 0; x < width; x++ {
			i0, i1, tx := gridNeighbours(x, width, gx)
			b := bins[y*width+x]
			top := (1-tx)*luts[j0][i0][b] + tx*luts[j0][i1][b]
			bottom := (1-tx)*luts[j1][i0][b] + tx*luts[j1][i1][b]
			out[y*width+x] = clamp(((1-ty)*top+ty*bottom)/2.55, 0, 100)
		}
	}
	return out
}

// tileLUT builds the clipped, redistributed cumulative mapping of one tile
func tileLUT(bins []int, width, x0, x1, y0, y1 int, clipLimit float64) []float64 {
	var hist [histogramBins]float64
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[bins[y*width+x]]++
			n++
		}
	}

	lut := make([]float64, histogramBins)
	if n == 0 {
		for k := range lut {
			lut[k] = float64(k)
		}
		return lut
	}

	limit := math.Max(1, clipLimit*float64(n)/histogramBins)
	excess := 0.0
	for k, c := range hist {
		if c > limit {
			excess += c - limit
			hist[k] = limit
		}
	}
	spread := excess / histogramBins

	cum := 0.0
	for k, c := range hist {
		cum += c + spread
		lut[k] = cum * 255 / float64(n)
	}
	return lut
}

// gridNeighbours returns the two tile indices around pixel p and the
// interpolation weight toward the second
func gridNeighbours(p, size, tiles int) (int, int, float64) {
	f := (float64(p)+0.5)/float64(size)*float64(tiles) - 0.5
	i0 := int(math.Floor(f))
	t := f - float64(i0)
	if f < 0 {
		t = 0
	}
	i1 := min(i0+1, tiles-1)
	i0 = max(i0, 0)
	if i0 == tiles-1 {
		i1 = i0
	}
	return i0, i1, t
}
