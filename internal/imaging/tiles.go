package imaging

import (
	"image"
	"math"
)

// Tile is one overlapping grid cell of the source image, used by the
// tiling fallback when anchor localization finds nothing.
type Tile struct {
	Image image.Image
	Col   int
	Row   int
}

const (
	defaultTileW   = 400
	defaultTileH   = 400
	defaultOverlap = 50
	minTileSide    = 50
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Tiles cuts img into a cols x rows grid of overlapping tiles. Cells
// smaller than the minimum side are skipped.
func Tiles(img image.Image, cols, rows int) []Tile {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if cols < 1 || rows < 1 {
		return nil
	}
	stepX := (w - defaultOverlap) / cols
	stepY := (h - defaultOverlap) / rows

	var tiles []Tile
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x0 := b.Min.X + col*stepX
			y0 := b.Min.Y + row*stepY
			x1 := min(b.Max.X, x0+defaultTileW)
			y1 := min(b.Max.Y, y0+defaultTileH)
			if x1-x0 < minTileSide || y1-y0 < minTileSide {
				continue
			}
			tiles = append(tiles, Tile{Image: crop(img, image.Rect(x0, y0, x1, y1)), Col: col, Row: row})
		}
	}
	return tiles
}

// AdaptiveTiles derives the grid from the image aspect ratio, capped at
// 3x3 and maxTiles cells.
func AdaptiveTiles(img image.Image, maxTiles int) []Tile {
	if maxTiles < 1 {
		maxTiles = 1
	}
	b := img.Bounds()
	aspect := float64(b.Dx()) / float64(b.Dy())
	cols := min(3, int(math.Sqrt(float64(maxTiles)*aspect)))
	rows := min(3, int(math.Sqrt(float64(maxTiles)/aspect)))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return Tiles(img, cols, rows)
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			dst.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return dst
}
