package tinyimg

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/tinyimg/internal/pathutil"
)

// defaultProjectMarkers are the directory entries that identify a project
// root for PathProject reporting.
var defaultProjectMarkers = []string{".git", "go.mod"}

// outputPath computes the destination for the compressed file: the source
// itself under overwrite, otherwise the source with suffix inserted before
// the extension. The extension is preserved exactly as supplied.
func outputPath(srcPath string, overwrite bool, suffix string) string {
	if overwrite {
		return srcPath
	}
	ext := filepath.Ext(srcPath)
	stem := strings.TrimSuffix(srcPath, ext)
	return stem + suffix + ext
}

// buildPathReport renders the output path in the form(s) mode asks for.
// sourceAsGiven is the path exactly as the caller supplied it, which anchors
// the relative form. Returns nil for PathNone.
func buildPathReport(mode PathMode, sourceAsGiven, outputAbs string, markers []string) *PathReport {
	if mode == PathNone {
		return nil
	}

	report := &PathReport{}

	if mode == PathAbsolute || mode == PathAll {
		report.Absolute = outputAbs
	}
	if mode == PathRelative || mode == PathAll {
		report.Relative = filepath.Join(filepath.Dir(sourceAsGiven), filepath.Base(outputAbs))
	}
	if mode == PathProject || mode == PathAll {
		project, ok := projectPath(outputAbs, markers)
		if ok {
			report.Project = project
			report.HasProject = true
		} else {
			log.Debug().Str("output", outputAbs).Strs("markers", markers).Msg("No project root found for path report")
		}
	}
	return report
}

// projectPath returns outputAbs relative to the nearest ancestor directory
// containing one of the marker entries. ok is false when no ancestor
// qualifies; that is an expected outcome, not an error.
func projectPath(outputAbs string, markers []string) (string, bool) {
	root, ok := pathutil.FindUp(filepath.Dir(outputAbs), markers)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(root, outputAbs)
	if err != nil {
		return "", false
	}
	return rel, true
}
