package tinyimg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tinyimg/internal/filehandler"
	"github.com/fpang/tinyimg/internal/tinypng"
)

// envAPIKey is the environment variable consulted when neither the call
// nor the session provides an API key.
const envAPIKey = "TINY_API"

// Shrink compresses the image file at path through the TinyPNG API and
// writes the result according to the resolved options. The source file is
// never modified unless overwrite is on. Option validation, file checks and
// credential resolution all happen before any network activity.
func (s *Session) Shrink(ctx context.Context, path string, opts ...Option) (*Result, error) {
	logger := log.With().Str("runId", uuid.NewString()).Logger()

	defaults := s.snapshotDefaults()
	eff, err := resolve(apply(opts), &defaults)
	if err != nil {
		return nil, err
	}
	if eff.suffixIgnored {
		logger.Warn().Str("suffix", eff.suffix).Msg("Suffix ignored because overwrite is enabled")
	}

	src, err := filehandler.Load(path)
	if err != nil {
		return nil, classifySource(err)
	}

	apiKey, err := resolveAPIKey(eff.apiKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(KindNotFound, "validate source", err)
		}
		return nil, fmt.Errorf("read source file: %w", err)
	}

	client := s.newClient(apiKey)

	logger.Debug().Str("source", src.Path).Int64("bytes", src.Size).Msg("Compressing image")
	shrunk, err := client.Shrink(ctx, data, src.MIMEType)
	if err != nil {
		return nil, classifyUpload(err)
	}

	outPath := outputPath(src.Path, eff.overwrite, eff.suffix)
	result := &Result{
		SourcePath:       src.Path,
		OutputPath:       outPath,
		InputSize:        src.Size,
		CompressionCount: shrunk.CompressionCount,
		RemoteURL:        shrunk.Location,
	}

	if eff.resize != nil {
		if err := writeResized(ctx, logger, client, shrunk.Location, *eff.resize, src, outPath, result); err != nil {
			return nil, err
		}
	} else {
		if err := writeDownloaded(ctx, client, shrunk.Location, src, outPath); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat output file: %w", err)
	}
	result.OutputSize = info.Size()
	result.ReductionPercent = reductionPercent(result.InputSize, result.OutputSize)

	if !eff.quiet {
		evt := logger.Info().
			Str("source", filepath.Base(src.Path)).
			Str("output", filepath.Base(outPath)).
			Int64("inputBytes", result.InputSize).
			Int64("outputBytes", result.OutputSize).
			Float64("reductionPct", result.ReductionPercent)
		if result.CompressionCount > 0 {
			evt = evt.Int("compressionCount", result.CompressionCount)
		}
		if result.Resized {
			evt = evt.Stringer("inputDimensions", result.InputDimensions).
				Stringer("outputDimensions", result.OutputDimensions)
		}
		evt.Msg("Compression complete")
	}

	result.Paths = buildPathReport(eff.pathMode, path, outPath, s.markers)
	return result, nil
}

// ShrinkImage encodes an in-memory image to path (PNG or JPEG per its
// extension) and then compresses the written file through the standard
// pipeline. Useful for programmatic image producers that want a compressed
// file in one step.
func (s *Session) ShrinkImage(ctx context.Context, img image.Image, path string, opts ...Option) (*Result, error) {
	ext := filepath.Ext(path)
	format, err := imaging.FormatFromExtension(ext)
	if err != nil || !filehandler.IsSupported(ext) {
		return nil, newError(KindUnsupportedFormat, fmt.Sprintf("cannot encode %q (supported: png, jpg, jpeg)", ext))
	}

	if err := filehandler.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, format)
	}); err != nil {
		return nil, fmt.Errorf("encode image to %s: %w", path, err)
	}
	return s.Shrink(ctx, path, opts...)
}

// classifySource maps filehandler validation failures to the error taxonomy.
func classifySource(err error) error {
	switch {
	case errors.Is(err, filehandler.ErrNotFound), errors.Is(err, filehandler.ErrIsDirectory):
		return wrapError(KindNotFound, "validate source", err)
	case errors.Is(err, filehandler.ErrUnsupported):
		return wrapError(KindUnsupportedFormat, "validate source", err)
	default:
		return wrapError(KindValidation, "validate source", err)
	}
}

// resolveAPIKey applies the credential fallback chain and checks that the
// chosen key is structurally usable.
func resolveAPIKey(key string) (string, error) {
	if key == "" {
		key = os.Getenv(envAPIKey)
	}
	if key == "" {
		return "", newError(KindMissingCredential, "no API key found: pass WithAPIKey, call SetAPIKey, or set "+envAPIKey)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", newError(KindInvalidCredential, "API key contains whitespace or control characters")
		}
	}
	return key, nil
}

// writeResized asks the service to resize the compressed result, re-encodes
// the returned image in the source format and writes it atomically. The
// result's dimension fields are filled from the decoded images.
func writeResized(ctx context.Context, logger zerolog.Logger, client *tinypng.Client, location string, spec ResizeSpec, src *filehandler.Source, outPath string, result *Result) error {
	resized, err := client.Resize(ctx, location, tinypng.ResizeCommand{
		Method: string(spec.Method),
		Width:  spec.Width,
		Height: spec.Height,
	})
	if err != nil {
		return classifyRemote("resize request failed", err)
	}

	img, err := imaging.Decode(bytes.NewReader(resized))
	if err != nil {
		return classifyRemote("decode resized image", err)
	}
	format, err := imaging.FormatFromExtension(src.Ext)
	if err != nil {
		return wrapError(KindUnsupportedFormat, "no encoder for extension "+src.Ext, err)
	}

	// Source dimensions must be read before the write: under overwrite the
	// output replaces the source file.
	if w, h, err := filehandler.Dimensions(src.Path); err == nil {
		result.InputDimensions = Dimensions{Width: w, Height: h}
	} else {
		logger.Debug().Err(err).Msg("Could not read source dimensions")
	}

	if err := filehandler.WriteAtomic(outPath, src.Mode, func(w io.Writer) error {
		return imaging.Encode(w, img, format)
	}); err != nil {
		return err
	}

	result.Resized = true
	result.OutputDimensions = Dimensions{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	return nil
}

// writeDownloaded streams the compressed result into the output file
// atomically. Failures from the download call itself are remote errors;
// purely local write failures are returned as-is.
func writeDownloaded(ctx context.Context, client *tinypng.Client, location string, src *filehandler.Source, outPath string) error {
	var remoteErr error
	err := filehandler.WriteAtomic(outPath, src.Mode, func(w io.Writer) error {
		if _, derr := client.Download(ctx, location, w); derr != nil {
			remoteErr = derr
			return derr
		}
		return nil
	})
	if err != nil {
		if remoteErr != nil {
			return classifyRemote("fetch compressed image", remoteErr)
		}
		return err
	}
	return nil
}
