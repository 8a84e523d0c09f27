package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/tinyimg"
	"github.com/fpang/tinyimg/internal/filehandler"
	"github.com/fpang/tinyimg/internal/logging"
)

// CLI flags
var (
	apiKeyFlag    string
	suffixFlag    string
	overwriteFlag bool
	quietFlag     bool
	resizeFlag    string
	widthFlag     int
	heightFlag    int
	printPathFlag string
	describeFlag  bool
	verboseFlag   bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "tinyimg [flags] FILE...",
	Short: "Compress PNG and JPEG images with the TinyPNG API",
	Long: `Tinyimg uploads PNG/JPEG files to the TinyPNG compression service and
writes the compressed results back next to the sources, either as suffixed
copies (default "_tiny") or in place with --overwrite.

The API key is resolved from --api-key, the TINY_API environment variable
(a .env file in the working directory is honored), or a tinify.yml in the
project tree. tinify.yml may also set defaults for suffix, overwrite, quiet,
return_path and resize.

Run without file arguments to pick images with a file dialog.

Examples:
  tinyimg photo.png
  tinyimg --overwrite *.jpg
  tinyimg -s _small --resize fit --width 300 --height 300 banner.png
  tinyimg -p project assets/logo.png
  tinyimg --describe holiday.jpg`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&apiKeyFlag, "api-key", "k", "", "TinyPNG API key (default: TINY_API environment variable)")
	rootCmd.Flags().StringVarP(&suffixFlag, "suffix", "s", tinyimg.DefaultSuffix, "Suffix for the compressed copy's file name")
	rootCmd.Flags().BoolVar(&overwriteFlag, "overwrite", false, "Replace the source file in place")
	rootCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress the per-file report")
	rootCmd.Flags().StringVar(&resizeFlag, "resize", "", "Resize method: scale, fit, cover or thumb")
	rootCmd.Flags().IntVar(&widthFlag, "width", 0, "Resize width in pixels")
	rootCmd.Flags().IntVar(&heightFlag, "height", 0, "Resize height in pixels")
	rootCmd.Flags().StringVarP(&printPathFlag, "print-path", "p", "", "Print the output path: absolute, relative, project or all")
	rootCmd.Flags().BoolVar(&describeFlag, "describe", false, "Log source capture metadata before compressing")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.Version = commitHash + " (built " + buildTime + ")"
}

func main() {
	// A .env in the working directory is optional.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	if verboseFlag {
		logging.SetDebug()
	}

	files := args
	if len(files) == 0 {
		picked, err := pickFiles()
		if err != nil {
			log.Fatal().Err(err).Msg("No input files")
		}
		files = picked
	}

	logging.NewStartupLogger("tinyimg").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Feature("overwrite", overwriteFlag).
		Feature("describe", describeFlag).
		Feature("resize", resizeFlag != "").
		Feature("apiKeyFromEnv", os.Getenv("TINY_API") != "").
		Config("files", strconv.Itoa(len(files))).
		Log()

	session := tinyimg.NewSession()
	session.LoadProjectConfig()

	opts := optionsFromFlags(cmd)
	quiet := effectiveQuiet(cmd.Flags().Changed("quiet"), quietFlag, session)

	failures := 0
	for _, file := range files {
		if describeFlag {
			describeSource(file)
		}

		result, err := session.Shrink(cmd.Context(), file, opts...)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Compression failed")
			failures++
			continue
		}

		if !quiet {
			printReport(result)
		}
		printPaths(result.Paths)
	}

	if failures > 0 {
		log.Error().Int("failed", failures).Int("total", len(files)).Msg("Some files failed to compress")
		os.Exit(1)
	}
}

// optionsFromFlags converts only the flags the user actually set, so
// session and tinify.yml defaults keep their precedence for the rest.
func optionsFromFlags(cmd *cobra.Command) []tinyimg.Option {
	flags := cmd.Flags()
	var opts []tinyimg.Option

	if flags.Changed("api-key") {
		opts = append(opts, tinyimg.WithAPIKey(apiKeyFlag))
	}
	if flags.Changed("suffix") {
		opts = append(opts, tinyimg.WithSuffix(suffixFlag))
	}
	if flags.Changed("overwrite") {
		opts = append(opts, tinyimg.WithOverwrite(overwriteFlag))
	}
	if flags.Changed("quiet") {
		opts = append(opts, tinyimg.WithQuiet(quietFlag))
	}
	if flags.Changed("print-path") {
		opts = append(opts, tinyimg.WithPathMode(tinyimg.PathMode(printPathFlag)))
	}
	if flags.Changed("resize") || flags.Changed("width") || flags.Changed("height") {
		opts = append(opts, tinyimg.WithResize(tinyimg.ResizeSpec{
			Method: tinyimg.ResizeMethod(resizeFlag),
			Width:  widthFlag,
			Height: heightFlag,
		}))
	}
	return opts
}

// effectiveQuiet decides whether the per-file report prints. An explicit
// --quiet wins either way; otherwise the session default applies, so a
// quiet set in tinify.yml silences the report too.
func effectiveQuiet(flagSet, flagValue bool, session *tinyimg.Session) bool {
	if flagSet {
		return flagValue
	}
	return session.Quiet()
}

// pickFiles opens a file dialog when the CLI is invoked without arguments.
func pickFiles() ([]string, error) {
	files, err := zenity.SelectFileMultiple(
		zenity.Title("Select images to compress"),
		zenity.FileFilters{
			{Name: "PNG and JPEG images", Patterns: []string{"*.png", "*.jpg", "*.jpeg"}, CaseFold: true},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, errors.New("selection canceled")
		}
		return nil, fmt.Errorf("file dialog: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no files selected")
	}
	return files, nil
}

// printReport writes the human-readable per-file summary to stdout.
func printReport(result *tinyimg.Result) {
	fmt.Printf("%s (%s) -> %s (%s)  %.1f%% reduction\n",
		filepath.Base(result.SourcePath), humanize.Bytes(uint64(result.InputSize)),
		filepath.Base(result.OutputPath), humanize.Bytes(uint64(result.OutputSize)),
		result.ReductionPercent)
	if result.Resized {
		fmt.Printf("  resized %s -> %s\n", result.InputDimensions, result.OutputDimensions)
	}
	if result.CompressionCount > 0 {
		fmt.Printf("  monthly compressions: %d\n", result.CompressionCount)
	}
}

// printPaths writes the requested output path form(s), independent of
// --quiet so scripts can rely on the output.
func printPaths(paths *tinyimg.PathReport) {
	if paths == nil {
		return
	}
	if paths.Absolute != "" {
		fmt.Println(paths.Absolute)
	}
	if paths.Relative != "" {
		fmt.Println(paths.Relative)
	}
	if paths.HasProject {
		fmt.Println(paths.Project)
	}
}

// describeSource logs best-effort capture metadata for a source file.
func describeSource(path string) {
	meta, err := filehandler.Describe(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("No capture metadata")
		return
	}

	evt := log.Info().Str("file", filepath.Base(path))
	if meta.CameraMake != "" {
		evt = evt.Str("cameraMake", meta.CameraMake)
	}
	if meta.CameraModel != "" {
		evt = evt.Str("cameraModel", meta.CameraModel)
	}
	if !meta.Taken.IsZero() {
		evt = evt.Time("taken", meta.Taken)
	}
	if meta.HasGPS {
		evt = evt.Float64("latitude", meta.Latitude).Float64("longitude", meta.Longitude)
	}
	evt.Msg("Source metadata")
}
