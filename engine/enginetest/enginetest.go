// Package enginetest provides scripted engine processes for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"mediaconv/engine"
)

// Script is an engine.Runner that imitates ffmpeg. Conversion runs print a
// Duration banner, emit progress lines and write Output to the last
// argument inside the engine root.
type Script struct {
	FS       vfs.FS // must be the FS given to the engine
	Output   []byte
	Duration time.Duration // zero prints "Duration: N/A"
	Steps    int           // progress lines before "progress=end"
	Err      error         // returned after writing output
	Version  string        // first line of -version output
	Block    chan struct{} // if set, conversion runs wait for it or ctx

	// Started, if set, receives one value per conversion run as it begins.
	Started chan struct{}

	mu    sync.Mutex
	calls []engine.Command
}

func (s *Script) Run(ctx context.Context, cmd engine.Command) error {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()

	if len(cmd.Args) == 1 && cmd.Args[0] == "-version" {
		v := s.Version
		if v == "" {
			v = "ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers"
		}
		fmt.Fprintln(cmd.Stdout, v)
		fmt.Fprintln(cmd.Stdout, "configuration: --enable-gpl")
		return nil
	}

	if s.Started != nil {
		s.Started <- struct{}{}
	}

	if s.Duration > 0 {
		total := s.Duration
		fmt.Fprintf(cmd.Stderr, "Input #0, mov,mp4, from 'in.mp4':\n  Duration: %02d:%02d:%05.2f, start: 0.000000, bitrate: 1205 kb/s\n",
			int(total.Hours()), int(total.Minutes())%60, total.Seconds()-float64(int(total.Minutes())*60))
	} else {
		fmt.Fprintln(cmd.Stderr, "Input #0, png_pipe, from 'in.png':\n  Duration: N/A, bitrate: N/A")
	}

	steps := s.Steps
	for i := 1; i <= steps; i++ {
		us := int64(s.Duration/time.Microsecond) * int64(i) / int64(steps+1)
		fmt.Fprintf(cmd.Stdout, "frame=%d\nout_time_us=%d\nprogress=continue\n", i*10, us)
	}

	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Stdout, "out_time_us=%d\nprogress=end\n", int64(s.Duration/time.Microsecond))

	if s.Output != nil && len(cmd.Args) > 0 {
		out := cmd.Args[len(cmd.Args)-1]
		if err := writeFile(s.FS, s.FS.PathJoin(cmd.Dir, out), s.Output); err != nil {
			return err
		}
	}
	if s.Err != nil {
		fmt.Fprintln(cmd.Stderr, "Conversion failed!")
	}
	return s.Err
}

// Calls returns the commands run so far.
func (s *Script) Calls() []engine.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Command(nil), s.calls...)
}

// ConversionArgs returns the arguments of the last non-version run with the
// engine's fixed prefix removed.
func (s *Script) ConversionArgs() []string {
	calls := s.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		args := calls[i].Args
		if len(args) == 1 && args[0] == "-version" {
			continue
		}
		for j, a := range args {
			if a == "pipe:1" {
				return args[j+1:]
			}
		}
		return args
	}
	return nil
}

func writeFile(fs vfs.FS, name string, data []byte) error {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(append([]byte(nil), data...)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// NewEngine returns an FFmpeg engine on an in-memory filesystem driven by s.
// s.FS is set if empty.
func NewEngine(s *Script) (*engine.FFmpeg, error) {
	if s.FS == nil {
		s.FS = vfs.NewMem()
	}
	return engine.NewFFmpeg(engine.FFmpegConfig{
		Path:   "/usr/bin/ffmpeg",
		FS:     s.FS,
		Root:   "/scratch/fs-test",
		Runner: s,
	})
}

// Faulty wraps an engine and injects failures per operation.
type Faulty struct {
	engine.Engine

	WriteErr  error
	ReadErr   error
	ListErr   error
	DeleteErr error
	ExecErr   error
	// SkipOutput makes Exec succeed without running the wrapped engine.
	SkipOutput bool

	mu      sync.Mutex
	deleted []string
}

func (f *Faulty) WriteFile(name string, data []byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	return f.Engine.WriteFile(name, data)
}

func (f *Faulty) ReadFile(name string) ([]byte, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	return f.Engine.ReadFile(name)
}

func (f *Faulty) ListDir(dir string) ([]engine.FileInfo, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Engine.ListDir(dir)
}

func (f *Faulty) DeleteFile(name string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, name)
	f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	return f.Engine.DeleteFile(name)
}

func (f *Faulty) Exec(ctx context.Context, args []string) error {
	if f.ExecErr != nil {
		return f.ExecErr
	}
	if f.SkipOutput {
		return nil
	}
	return f.Engine.Exec(ctx, args)
}

// Deleted returns the names passed to DeleteFile.
func (f *Faulty) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Names lists the files currently in e's root.
func Names(e engine.Engine) ([]string, error) {
	infos, err := e.ListDir("")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, fi := range infos {
		out = append(out, fi.Name)
	}
	return out, nil
}

// ErrScripted is a convenient failure for Script.Err.
var ErrScripted = errors.New("scripted engine failure")
