package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/hashicorp/go-hclog"
)

// Flags prepended to every Exec so progress arrives as key=value lines on
// stdout and diagnostics on stderr.
var baseArgs = []string{"-hide_banner", "-nostdin", "-nostats", "-progress", "pipe:1"}

const stderrTail = 6

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// FFmpegConfig configures an FFmpeg engine.
type FFmpegConfig struct {
	Path   string // engine binary
	FS     vfs.FS // backing store of the private filesystem
	Root   string // private root inside FS; created if missing
	Runner Runner // nil uses ExecRunner
	Logger hclog.Logger
}

// FFmpeg runs the ffmpeg binary against a private directory. Files staged
// through WriteFile are visible to Exec by their bare names.
type FFmpeg struct {
	path   string
	fs     vfs.FS
	root   string
	runner Runner
	log    hclog.Logger

	mu         sync.Mutex
	listeners  map[uint64]Listener
	nextID     uint64
	cancels    map[uint64]context.CancelFunc
	terminated bool
}

// NewFFmpeg creates the private root and returns an engine bound to it.
func NewFFmpeg(cfg FFmpegConfig) (*FFmpeg, error) {
	if cfg.Path == "" {
		return nil, errors.New("engine binary path is required")
	}
	if cfg.FS == nil {
		cfg.FS = vfs.Default
	}
	if cfg.Root == "" {
		return nil, errors.New("engine root is required")
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if err := cfg.FS.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create engine root %s: %w", cfg.Root, err)
	}
	return &FFmpeg{
		path:      cfg.Path,
		fs:        cfg.FS,
		root:      cfg.Root,
		runner:    cfg.Runner,
		log:       cfg.Logger,
		listeners: make(map[uint64]Listener),
		cancels:   make(map[uint64]context.CancelFunc),
	}, nil
}

// Root returns the private directory the engine works in.
func (f *FFmpeg) Root() string {
	return f.root
}

// Path returns the engine binary.
func (f *FFmpeg) Path() string {
	return f.path
}

func (f *FFmpeg) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return f.fs.PathJoin(f.root, name), nil
}

func (f *FFmpeg) alive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return ErrTerminated
	}
	return nil
}

// chunkReader hides bytes.Reader's WriteTo: vfs.File.Write may modify the
// slice it is given, so the caller's buffer must never reach it directly.
type chunkReader struct{ io.Reader }

func (f *FFmpeg) WriteFile(name string, data []byte) error {
	if err := f.alive(); err != nil {
		return err
	}
	p, err := f.resolve(name)
	if err != nil {
		return err
	}
	file, err := f.fs.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.CopyBuffer(file, chunkReader{bytes.NewReader(data)}, make([]byte, 256<<10)); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return file.Close()
}

func (f *FFmpeg) ReadFile(name string) ([]byte, error) {
	if err := f.alive(); err != nil {
		return nil, err
	}
	p, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := f.fs.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (f *FFmpeg) DeleteFile(name string) error {
	if err := f.alive(); err != nil {
		return err
	}
	p, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.fs.Remove(p)
}

// ListDir lists dir relative to the private root; "", "." and "/" mean the root.
func (f *FFmpeg) ListDir(dir string) ([]FileInfo, error) {
	if err := f.alive(); err != nil {
		return nil, err
	}
	target := f.root
	switch dir {
	case "", ".", "/":
	default:
		p, err := f.resolve(dir)
		if err != nil {
			return nil, err
		}
		target = p
	}
	names, err := f.fs.List(target)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(names)
	out := make([]FileInfo, 0, len(names))
	for _, n := range names {
		st, err := f.fs.Stat(f.fs.PathJoin(target, n))
		if err != nil {
			// removed between List and Stat
			continue
		}
		out = append(out, FileInfo{Name: n, Size: st.Size(), IsDir: st.IsDir()})
	}
	return out, nil
}

func (f *FFmpeg) Subscribe(l Listener) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

func (f *FFmpeg) snapshot() []Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.listeners[id])
	}
	return out
}

func (f *FFmpeg) emitProgress(e ProgressEvent) {
	for _, l := range f.snapshot() {
		l.OnProgress(e)
	}
}

func (f *FFmpeg) emitLog(e LogEvent) {
	for _, l := range f.snapshot() {
		l.OnLog(e)
	}
}

// Exec runs the engine with args inside the private root and blocks until
// it exits. Progress and log events are delivered to subscribers while it runs.
func (f *FFmpeg) Exec(ctx context.Context, args []string) error {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return ErrTerminated
	}
	runCtx, cancel := context.WithCancel(ctx)
	id := f.nextID
	f.nextID++
	f.cancels[id] = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.cancels, id)
		f.mu.Unlock()
		cancel()
	}()

	full := make([]string, 0, len(baseArgs)+len(args))
	full = append(full, baseArgs...)
	full = append(full, args...)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	p := &progressParser{}
	tail := &tailBuffer{max: stderrTail}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdoutR, func(line string) {
			if e, ok := p.progressLine(line); ok {
				f.emitProgress(e)
			}
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderrR, func(line string) {
			p.stderrLine(line)
			tail.add(line)
			f.emitLog(LogEvent{Type: "stderr", Message: line})
		})
	}()

	start := time.Now()
	f.log.Debug("exec", "args", strings.Join(args, " "))
	err := f.runner.Run(runCtx, Command{
		Path:   f.path,
		Args:   full,
		Dir:    f.root,
		Stdout: stdoutW,
		Stderr: stderrW,
	})
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	if err != nil {
		if !errors.Is(err, context.Canceled) || ctx.Err() != nil {
			if t := tail.String(); t != "" {
				return fmt.Errorf("ffmpeg failed: %w: %s", err, t)
			}
			return fmt.Errorf("ffmpeg failed: %w", err)
		}
		// cancelled by Terminate
		return fmt.Errorf("ffmpeg failed: %w", ErrTerminated)
	}
	f.log.Debug("exec finished", "elapsed", time.Since(start))
	return nil
}

// Version runs `ffmpeg -version` and returns its first line.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	if err := f.alive(); err != nil {
		return "", err
	}
	var stdout, stderr bytes.Buffer
	err := f.runner.Run(ctx, Command{
		Path:   f.path,
		Args:   []string{"-version"},
		Dir:    f.root,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("ffmpeg -version printed nothing")
	}
	return line, nil
}

// Terminate kills running executions, removes the private root and makes
// every later call fail with ErrTerminated. Safe to call more than once.
func (f *FFmpeg) Terminate() error {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return nil
	}
	f.terminated = true
	cancels := f.cancels
	f.cancels = make(map[uint64]context.CancelFunc)
	f.listeners = make(map[uint64]Listener)
	f.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if err := f.fs.RemoveAll(f.root); err != nil {
		return fmt.Errorf("failed to remove engine root: %w", err)
	}
	return nil
}

// progressParser turns ffmpeg's -progress output into ratio events. The
// total duration comes from the "Duration:" banner on stderr.
type progressParser struct {
	duration atomic.Int64 // microseconds
	outTime  atomic.Int64 // microseconds
}

func (p *progressParser) stderrLine(line string) {
	if p.duration.Load() > 0 {
		return
	}
	if d, ok := parseDuration(line); ok && d > 0 {
		p.duration.Store(d.Microseconds())
	}
}

func (p *progressParser) progressLine(line string) (ProgressEvent, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return ProgressEvent{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms": // both are microseconds
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return ProgressEvent{}, false
		}
		p.outTime.Store(us)
	case "progress":
		if value != "end" {
			return ProgressEvent{}, false
		}
		return ProgressEvent{Progress: 1, Time: time.Duration(p.outTime.Load()) * time.Microsecond}, true
	default:
		return ProgressEvent{}, false
	}

	total := p.duration.Load()
	if total <= 0 {
		return ProgressEvent{}, false
	}
	cur := p.outTime.Load()
	return ProgressEvent{
		Progress: float64(cur) / float64(total),
		Time:     time.Duration(cur) * time.Microsecond,
	}, true
}

func parseDuration(line string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return d, true
}

// scanLines reads r to EOF, calling fn for each non-empty line. Lines end at
// '\n' or '\r'.
func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	sc.Split(splitCRLF)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	// drain so the writer never blocks on an overlong line
	io.Copy(io.Discard, r)
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
