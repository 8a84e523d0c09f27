package tinyimg

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// requestLog counts calls reaching the stub compression service, used to
// prove that validation failures never touch the network.
type requestLog struct {
	mu       sync.Mutex
	shrink   int
	resize   int
	download int
}

func (l *requestLog) counts() (shrink, resize, download int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shrink, l.resize, l.download
}

func (l *requestLog) total() int {
	s, r, d := l.counts()
	return s + r + d
}

// newService starts a stub compression service and returns a Session wired
// to it. Plain downloads serve compressed; resize requests serve resized.
// The key "revoked" is rejected with HTTP 401.
func newService(t *testing.T, compressed, resized []byte) (*Session, *requestLog) {
	t.Helper()
	rl := &requestLog{}

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/shrink", func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		rl.shrink++
		rl.mu.Unlock()

		if _, key, ok := r.BasicAuth(); !ok || key == "revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "Unauthorized",
				"message": "Credentials are invalid.",
			})
			return
		}
		w.Header().Set("Location", srv.URL+"/output/result1.png")
		w.Header().Set("Compression-Count", "7")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/output/result1.png", func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		if r.Method == http.MethodPost {
			rl.resize++
		} else {
			rl.download++
		}
		rl.mu.Unlock()

		if r.Method == http.MethodPost {
			w.Write(resized)
			return
		}
		w.Write(compressed)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := NewSession(WithHTTPClient(srv.Client()), WithBaseURL(srv.URL))
	return session, rl
}

// writeSource drops a source file of the given content into a temp dir.
func writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

// encodePNG returns PNG bytes for a blank w x h image.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// chdir switches the working directory to dir for the rest of the test and
// restores the previous directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

func TestShrinkEndToEnd(t *testing.T) {
	source := bytes.Repeat([]byte{0xEE}, 20000)
	compressed := bytes.Repeat([]byte{0xCC}, 10000)
	srcPath := writeSource(t, "example.png", source)

	session, rl := newService(t, compressed, nil)
	result, err := session.Shrink(context.Background(), srcPath, WithAPIKey("good-key"))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	wantOut := filepath.Join(filepath.Dir(srcPath), "example_tiny.png")
	if result.OutputPath != wantOut {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, wantOut)
	}
	if result.InputSize != 20000 || result.OutputSize != 10000 {
		t.Errorf("sizes = %d -> %d, want 20000 -> 10000", result.InputSize, result.OutputSize)
	}
	if result.ReductionPercent != 50.0 {
		t.Errorf("ReductionPercent = %v, want 50.0", result.ReductionPercent)
	}
	if result.CompressionCount != 7 {
		t.Errorf("CompressionCount = %d, want 7", result.CompressionCount)
	}
	if result.RemoteURL == "" {
		t.Error("RemoteURL is empty")
	}
	if result.Resized {
		t.Error("Resized = true without a resize option")
	}
	if result.Paths != nil {
		t.Errorf("Paths = %+v, want nil under the default path mode", result.Paths)
	}

	out, err := os.ReadFile(wantOut)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(out, compressed) {
		t.Error("output bytes differ from the service's compressed result")
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if !bytes.Equal(src, source) {
		t.Error("source file was modified")
	}

	if s, r, d := rl.counts(); s != 1 || r != 0 || d != 1 {
		t.Errorf("requests = shrink %d, resize %d, download %d; want 1, 0, 1", s, r, d)
	}
}

func TestShrinkOverwrite(t *testing.T) {
	source := bytes.Repeat([]byte{0xEE}, 4000)
	compressed := bytes.Repeat([]byte{0xCC}, 1000)
	srcPath := writeSource(t, "keep.jpg", source)

	session, _ := newService(t, compressed, nil)
	result, err := session.Shrink(context.Background(), srcPath, WithAPIKey("k"), WithOverwrite(true))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	if result.OutputPath != result.SourcePath {
		t.Errorf("OutputPath = %q, want the source path %q", result.OutputPath, result.SourcePath)
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, compressed) {
		t.Error("source was not replaced with the compressed bytes")
	}
	if result.ReductionPercent != 75.0 {
		t.Errorf("ReductionPercent = %v, want 75.0", result.ReductionPercent)
	}
}

func TestShrinkMissingFileBeforeNetwork(t *testing.T) {
	session, rl := newService(t, nil, nil)

	_, err := session.Shrink(context.Background(), filepath.Join(t.TempDir(), "gone.png"), WithAPIKey("k"))
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Errorf("err = %v, want KindNotFound", err)
	}
	if rl.total() != 0 {
		t.Errorf("%d requests made before validation failed", rl.total())
	}
}

func TestShrinkDirectoryBeforeNetwork(t *testing.T) {
	session, rl := newService(t, nil, nil)

	_, err := session.Shrink(context.Background(), t.TempDir(), WithAPIKey("k"))
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Errorf("err = %v, want KindNotFound", err)
	}
	if rl.total() != 0 {
		t.Errorf("%d requests made for a directory source", rl.total())
	}
}

func TestShrinkUnsupportedFormatBeforeNetwork(t *testing.T) {
	srcPath := writeSource(t, "anim.gif", []byte("GIF89a"))
	session, rl := newService(t, nil, nil)

	_, err := session.Shrink(context.Background(), srcPath, WithAPIKey("k"))
	if kind, ok := KindOf(err); !ok || kind != KindUnsupportedFormat {
		t.Errorf("err = %v, want KindUnsupportedFormat", err)
	}
	if rl.total() != 0 {
		t.Errorf("%d requests made for an unsupported format", rl.total())
	}
}

func TestShrinkMissingCredentialBeforeNetwork(t *testing.T) {
	t.Setenv(envAPIKey, "")
	srcPath := writeSource(t, "img.png", []byte("data"))
	session, rl := newService(t, nil, nil)

	_, err := session.Shrink(context.Background(), srcPath)
	if kind, ok := KindOf(err); !ok || kind != KindMissingCredential {
		t.Errorf("err = %v, want KindMissingCredential", err)
	}
	if rl.total() != 0 {
		t.Errorf("%d requests made without a credential", rl.total())
	}
}

func TestShrinkInvalidCredential(t *testing.T) {
	srcPath := writeSource(t, "img.png", []byte("data"))
	session, rl := newService(t, nil, nil)

	tests := []string{"bad key", "tab\tkey", "trailing\n", " "}
	for _, key := range tests {
		_, err := session.Shrink(context.Background(), srcPath, WithAPIKey(key))
		if kind, ok := KindOf(err); !ok || kind != KindInvalidCredential {
			t.Errorf("key %q: err = %v, want KindInvalidCredential", key, err)
		}
	}
	if rl.total() != 0 {
		t.Errorf("%d requests made with unusable credentials", rl.total())
	}
}

func TestShrinkEnvCredentialFallback(t *testing.T) {
	t.Setenv(envAPIKey, "env-key")
	srcPath := writeSource(t, "img.png", []byte("data"))
	session, rl := newService(t, []byte("out"), nil)

	if _, err := session.Shrink(context.Background(), srcPath); err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if s, _, _ := rl.counts(); s != 1 {
		t.Errorf("shrink calls = %d, want 1", s)
	}
}

func TestShrinkAuthenticationError(t *testing.T) {
	srcPath := writeSource(t, "img.png", []byte("data"))
	session, _ := newService(t, nil, nil)

	_, err := session.Shrink(context.Background(), srcPath, WithAPIKey("revoked"))
	if kind, ok := KindOf(err); !ok || kind != KindAuthentication {
		t.Errorf("err = %v, want KindAuthentication", err)
	}
}

func TestShrinkRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "TooManyRequests",
			"message": "Your monthly limit has been exceeded.",
		})
	}))
	defer srv.Close()
	session := NewSession(WithHTTPClient(srv.Client()), WithBaseURL(srv.URL))

	srcPath := writeSource(t, "img.png", []byte("data"))
	_, err := session.Shrink(context.Background(), srcPath, WithAPIKey("k"))
	if kind, ok := KindOf(err); !ok || kind != KindRemote {
		t.Fatalf("err = %v, want KindRemote", err)
	}
	if !strings.Contains(err.Error(), "TooManyRequests") {
		t.Errorf("error should carry the service message, got %q", err.Error())
	}
}

func TestShrinkResize(t *testing.T) {
	source := encodePNG(t, 16, 12)
	resized := encodePNG(t, 8, 6)
	srcPath := writeSource(t, "photo.png", source)

	session, rl := newService(t, nil, resized)
	result, err := session.Shrink(context.Background(), srcPath,
		WithAPIKey("k"),
		WithResize(ResizeSpec{Method: ResizeFit, Width: 8, Height: 6}),
	)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	if !result.Resized {
		t.Error("Resized = false")
	}
	if result.InputDimensions != (Dimensions{Width: 16, Height: 12}) {
		t.Errorf("InputDimensions = %v, want 16x12", result.InputDimensions)
	}
	if result.OutputDimensions != (Dimensions{Width: 8, Height: 6}) {
		t.Errorf("OutputDimensions = %v, want 8x6", result.OutputDimensions)
	}
	if s, r, d := rl.counts(); s != 1 || r != 1 || d != 0 {
		t.Errorf("requests = shrink %d, resize %d, download %d; want 1, 1, 0", s, r, d)
	}

	// The written file is a decodable PNG at the resized dimensions.
	f, err := os.Open(result.OutputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if cfg.Width != 8 || cfg.Height != 6 {
		t.Errorf("output dims = %dx%d, want 8x6", cfg.Width, cfg.Height)
	}
}

func TestShrinkResizeReencodesPerSourceExtension(t *testing.T) {
	// The stub serves PNG bytes for the resize, but a .jpg source must end
	// up encoded as JPEG.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	srcPath := writeSource(t, "photo.jpg", buf.Bytes())

	session, _ := newService(t, nil, encodePNG(t, 5, 5))
	result, err := session.Shrink(context.Background(), srcPath,
		WithAPIKey("k"),
		WithResize(ResizeSpec{Method: ResizeScale, Width: 5}),
	)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	f, err := os.Open(result.OutputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg for a .jpg source", format)
	}
}

func TestShrinkOverwriteResizeReportsSourceDimensions(t *testing.T) {
	source := encodePNG(t, 16, 12)
	resized := encodePNG(t, 8, 6)
	srcPath := writeSource(t, "photo.png", source)

	session, _ := newService(t, nil, resized)
	result, err := session.Shrink(context.Background(), srcPath,
		WithAPIKey("k"),
		WithOverwrite(true),
		WithResize(ResizeSpec{Method: ResizeFit, Width: 8, Height: 6}),
	)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	if result.OutputPath != result.SourcePath {
		t.Errorf("OutputPath = %q, want the source path", result.OutputPath)
	}
	// The input dimensions describe the original file, not the resized
	// bytes that replaced it.
	if result.InputDimensions != (Dimensions{Width: 16, Height: 12}) {
		t.Errorf("InputDimensions = %v, want 16x12", result.InputDimensions)
	}
	if result.OutputDimensions != (Dimensions{Width: 8, Height: 6}) {
		t.Errorf("OutputDimensions = %v, want 8x6", result.OutputDimensions)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 6 {
		t.Errorf("replaced file dims = %dx%d, want 8x6", cfg.Width, cfg.Height)
	}
}

func TestShrinkSessionDefaultsAndCallPrecedence(t *testing.T) {
	srcPath := writeSource(t, "img.png", []byte("data"))
	session, _ := newService(t, []byte("x"), nil)
	session.SetAPIKey("k")
	if err := session.SetDefaults(WithSuffix("_opt")); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}

	result, err := session.Shrink(context.Background(), srcPath)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if !strings.HasSuffix(result.OutputPath, "img_opt.png") {
		t.Errorf("OutputPath = %q, want session default suffix", result.OutputPath)
	}

	result, err = session.Shrink(context.Background(), srcPath, WithSuffix("_call"))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if !strings.HasSuffix(result.OutputPath, "img_call.png") {
		t.Errorf("OutputPath = %q, want call suffix to win", result.OutputPath)
	}
}

func TestShrinkDownloadFailureLeavesTargetIntact(t *testing.T) {
	source := []byte("irreplaceable original")

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/shrink", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", srv.URL+"/output/r.png")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/output/r.png", func(w http.ResponseWriter, r *http.Request) {
		// Declare more bytes than are sent so the client sees a truncated body.
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("short"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	srcPath := writeSource(t, "keep.png", source)
	session := NewSession(WithHTTPClient(srv.Client()), WithBaseURL(srv.URL))

	_, err := session.Shrink(context.Background(), srcPath, WithAPIKey("k"), WithOverwrite(true))
	if err == nil {
		t.Fatal("expected a download failure")
	}
	if kind, ok := KindOf(err); !ok || kind != KindRemote {
		t.Errorf("err = %v, want KindRemote", err)
	}

	data, readErr := os.ReadFile(srcPath)
	if readErr != nil {
		t.Fatalf("read source: %v", readErr)
	}
	if !bytes.Equal(data, source) {
		t.Error("target file was corrupted by a failed download")
	}

	entries, readErr := os.ReadDir(filepath.Dir(srcPath))
	if readErr != nil {
		t.Fatalf("readdir: %v", readErr)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestShrinkPathReportAll(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	srcPath := filepath.Join(dir, "img.png")
	if err := os.WriteFile(srcPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	session, _ := newService(t, []byte("x"), nil)
	chdir(t, dir)

	result, err := session.Shrink(context.Background(), "img.png",
		WithAPIKey("k"),
		WithPathMode(PathAll),
	)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if result.Paths == nil {
		t.Fatal("Paths is nil under PathAll")
	}
	if !filepath.IsAbs(result.Paths.Absolute) || filepath.Base(result.Paths.Absolute) != "img_tiny.png" {
		t.Errorf("Absolute = %q", result.Paths.Absolute)
	}
	if result.Paths.Relative != "img_tiny.png" {
		t.Errorf("Relative = %q, want img_tiny.png", result.Paths.Relative)
	}
	if !result.Paths.HasProject || result.Paths.Project != "img_tiny.png" {
		t.Errorf("Project = (%q, %v), want (img_tiny.png, true)", result.Paths.Project, result.Paths.HasProject)
	}
}

func TestShrinkConfigFileFillsOnlyUnsetFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tinify.yml")
	yml := "suffix: \"_yml\"\nquiet: true\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	session, _ := newService(t, []byte("x"), nil)
	if err := session.SetDefaults(WithSuffix("_set")); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	if err := session.LoadConfigFile(cfgPath); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	snap := session.snapshotDefaults()
	if snap.suffix == nil || *snap.suffix != "_set" {
		t.Error("explicit default lost to config file")
	}
	if snap.quiet == nil || !*snap.quiet {
		t.Error("unset field not filled from config file")
	}
}

func TestLoadConfigFileRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tinify.yml")
	yml := "resize:\n  method: stretch\n  width: 10\n  height: 10\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	session := NewSession()
	err := session.LoadConfigFile(cfgPath)
	if kind, ok := KindOf(err); !ok || kind != KindValidation {
		t.Errorf("err = %v, want KindValidation", err)
	}
}

func TestLoadProjectConfigBestEffort(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tinify.yml"), []byte("suffix: [broken\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	session := NewSession()
	chdir(t, dir)
	session.LoadProjectConfig()

	snap := session.snapshotDefaults()
	if snap.suffix != nil {
		t.Error("malformed project config should be ignored")
	}
}

func TestLoadProjectConfigApplies(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tinify.yml"), []byte("return_path: all\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	session := NewSession()
	chdir(t, dir)
	session.LoadProjectConfig()

	snap := session.snapshotDefaults()
	if snap.pathMode == nil || *snap.pathMode != PathAll {
		t.Errorf("pathMode = %v, want all from project config", snap.pathMode)
	}
}

func TestShrinkImage(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "plot.png")
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))

	session, rl := newService(t, []byte("compressed"), nil)
	result, err := session.ShrinkImage(context.Background(), img, target, WithAPIKey("k"))
	if err != nil {
		t.Fatalf("ShrinkImage: %v", err)
	}

	// The encoded original stays at target; the compressed copy lands
	// alongside with the suffix.
	if _, err := os.Stat(target); err != nil {
		t.Errorf("encoded image missing: %v", err)
	}
	if want := filepath.Join(dir, "plot_tiny.png"); result.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, want)
	}
	if s, _, d := rl.counts(); s != 1 || d != 1 {
		t.Errorf("requests = shrink %d, download %d; want 1, 1", s, d)
	}
}

func TestShrinkImageUnsupportedExtension(t *testing.T) {
	session, rl := newService(t, nil, nil)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	_, err := session.ShrinkImage(context.Background(), img, filepath.Join(t.TempDir(), "plot.bmp"), WithAPIKey("k"))
	if kind, ok := KindOf(err); !ok || kind != KindUnsupportedFormat {
		t.Errorf("err = %v, want KindUnsupportedFormat", err)
	}
	if rl.total() != 0 {
		t.Error("no requests should be made for an unsupported target")
	}
}
