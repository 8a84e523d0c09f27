package filehandler

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	// Register the decoders Dimensions needs for the supported formats.
	_ "image/jpeg"
	_ "image/png"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Dimensions returns the pixel width and height of the image at path.
// Only the image header is read, not the full pixel data.
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Meta holds best-effort capture metadata for a source image.
type Meta struct {
	CameraMake  string
	CameraModel string
	Taken       time.Time
	HasGPS      bool
	Latitude    float64
	Longitude   float64
}

// Describe extracts EXIF capture metadata from the image at path using the
// imagemeta library. Images without EXIF (most PNGs, screenshots) return an
// error; callers treat that as "nothing to report".
func Describe(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	exifData, err := imagemeta.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	m := &Meta{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		m.HasGPS = true
		m.Latitude = gps.Latitude()
		m.Longitude = gps.Longitude()
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		m.Taken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		m.Taken = exifData.CreateDate()
	}

	log.Debug().
		Str("make", m.CameraMake).
		Str("model", m.CameraModel).
		Bool("hasGps", m.HasGPS).
		Msg("Extracted image metadata")
	return m, nil
}
