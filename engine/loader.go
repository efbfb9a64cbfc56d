package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/hashicorp/go-hclog"

	"mediaconv/utils"
)

// Loader produces a ready engine. It is invoked by Manager at most once per
// load attempt.
type Loader interface {
	Load(ctx context.Context) (Engine, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Engine, error)

func (f LoaderFunc) Load(ctx context.Context) (Engine, error) {
	return f(ctx)
}

const (
	binaryArtifact   = "ffmpeg"
	manifestArtifact = "manifest.jws"
)

// startEngine creates a private root under scratchDir and checks the binary
// answers `-version`.
func startEngine(ctx context.Context, path, scratchDir string, fs vfs.FS, runner Runner, log hclog.Logger) (*FFmpeg, error) {
	if fs == nil {
		fs = vfs.Default
	}
	suffix, err := utils.GenerateRandomHex(6)
	if err != nil {
		return nil, fmt.Errorf("failed to name engine root: %w", err)
	}
	eng, err := NewFFmpeg(FFmpegConfig{
		Path:   path,
		FS:     fs,
		Root:   fs.PathJoin(scratchDir, "fs-"+suffix),
		Runner: runner,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	version, err := eng.Version(ctx)
	if err != nil {
		eng.Terminate()
		return nil, err
	}
	log.Info("engine initialized", "binary", path, "version", version, "root", eng.Root())
	return eng, nil
}

// SystemLoader uses an ffmpeg binary already installed on the machine.
type SystemLoader struct {
	Path       string // explicit binary; empty searches PATH
	ScratchDir string
	FS         vfs.FS // private filesystem store; nil uses vfs.Default
	Runner     Runner
	Logger     hclog.Logger
	LookPath   func(string) (string, error) // nil uses exec.LookPath
}

func (l *SystemLoader) Load(ctx context.Context) (Engine, error) {
	log := l.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	path := l.Path
	if path == "" {
		lookPath := l.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		p, err := lookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		path = p
	}
	eng, err := startEngine(ctx, path, l.ScratchDir, l.FS, l.Runner, log)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

// ArtifactLoader fetches a pinned engine release from BaseURL, verifies it
// against its signed manifest and caches it under CacheDir.
//
// Layout: {BaseURL}/{Version}/ffmpeg and {BaseURL}/{Version}/manifest.jws.
type ArtifactLoader struct {
	BaseURL    string
	Version    string
	CacheDir   string // usually {data_dir}/engine/{version}
	ScratchDir string
	Secret     []byte // HS256 manifest key; nil reads the manifest unverified
	Issuer     string
	Client     *http.Client
	CacheFS    vfs.FS // nil uses vfs.Default
	EngineFS   vfs.FS // nil uses vfs.Default
	Runner     Runner
	Logger     hclog.Logger
}

func (l *ArtifactLoader) Load(ctx context.Context) (Engine, error) {
	log := l.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if l.BaseURL == "" || l.Version == "" {
		return nil, errors.New("artifact loader needs a base URL and version")
	}
	fs := l.CacheFS
	if fs == nil {
		fs = vfs.Default
	}
	if err := fs.MkdirAll(l.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create engine cache %s: %w", l.CacheDir, err)
	}

	binPath := fs.PathJoin(l.CacheDir, binaryArtifact)
	manifestPath := fs.PathJoin(l.CacheDir, manifestArtifact)

	if l.cached(fs, manifestPath, binPath) {
		log.Debug("using cached engine", "version", l.Version, "path", binPath)
	} else {
		if err := l.download(ctx, fs, manifestPath, binPath, log); err != nil {
			return nil, err
		}
	}
	eng, err := startEngine(ctx, binPath, l.ScratchDir, l.EngineFS, l.Runner, log)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

func (l *ArtifactLoader) verify(token string) (string, error) {
	m, err := utils.VerifyManifest(token, utils.VerifyConfig{SecretKey: l.Secret, ExpectedIssuer: l.Issuer})
	if err != nil {
		return "", err
	}
	if m.Version != l.Version {
		return "", fmt.Errorf("manifest is for version %q, want %q", m.Version, l.Version)
	}
	return strings.ToLower(m.SHA256), nil
}

func (l *ArtifactLoader) cached(fs vfs.FS, manifestPath, binPath string) bool {
	token, err := readAll(fs, manifestPath)
	if err != nil {
		return false
	}
	want, err := l.verify(strings.TrimSpace(string(token)))
	if err != nil {
		return false
	}
	got, err := digestFile(fs, binPath)
	return err == nil && got == want
}

func (l *ArtifactLoader) url(artifact string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/" + l.Version + "/" + artifact
}

func (l *ArtifactLoader) download(ctx context.Context, fs vfs.FS, manifestPath, binPath string, log hclog.Logger) error {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	var token strings.Builder
	if err := fetch(ctx, client, l.url(manifestArtifact), &token); err != nil {
		return fmt.Errorf("failed to fetch engine manifest: %w", err)
	}
	want, err := l.verify(strings.TrimSpace(token.String()))
	if err != nil {
		return fmt.Errorf("engine manifest rejected: %w", err)
	}

	tmp := binPath + ".part"
	file, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	h := sha256.New()
	err = fetch(ctx, client, l.url(binaryArtifact), io.MultiWriter(h, file))
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to fetch engine binary: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		fs.Remove(tmp)
		return fmt.Errorf("engine binary digest mismatch: got %s, want %s", got, want)
	}
	if err := fs.Rename(tmp, binPath); err != nil {
		return fmt.Errorf("failed to install engine binary: %w", err)
	}
	if err := writeAll(fs, manifestPath, []byte(token.String())); err != nil {
		return err
	}
	if fs == vfs.Default {
		if err := os.Chmod(binPath, 0o755); err != nil {
			return fmt.Errorf("failed to mark engine executable: %w", err)
		}
	}
	log.Info("engine downloaded", "version", l.Version, "path", filepath.Clean(binPath))
	return nil
}

func fetch(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func readAll(fs vfs.FS, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeAll(fs vfs.FS, name string, data []byte) error {
	f, err := fs.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := f.Write(append([]byte(nil), data...)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func digestFile(fs vfs.FS, name string) (string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
