// Package engine wraps the external transcoding engine behind a small
// black-box contract and manages the lifecycle of the shared instance.
package engine

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTerminated  = errors.New("engine terminated")
	ErrInvalidName = errors.New("invalid file name")
)

// FileInfo describes one entry of the engine's private filesystem.
type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
}

// ProgressEvent is a raw progress sample from the engine. Progress is the
// engine's own ratio estimate and may be outside [0,1].
type ProgressEvent struct {
	Progress float64
	Time     time.Duration
}

// LogEvent carries one line of engine diagnostics.
type LogEvent struct {
	Type    string // "stderr" or "stdout"
	Message string
}

// Listener receives engine events while subscribed.
type Listener interface {
	OnProgress(ProgressEvent)
	OnLog(LogEvent)
}

// ListenerFuncs adapts optional callbacks to Listener.
type ListenerFuncs struct {
	Progress func(ProgressEvent)
	Log      func(LogEvent)
}

func (l ListenerFuncs) OnProgress(e ProgressEvent) {
	if l.Progress != nil {
		l.Progress(e)
	}
}

func (l ListenerFuncs) OnLog(e LogEvent) {
	if l.Log != nil {
		l.Log(e)
	}
}

// Engine is the transcoding engine as seen by the orchestrator: a private
// flat filesystem, a command executor and an event stream.
type Engine interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	ListDir(dir string) ([]FileInfo, error)
	Exec(ctx context.Context, args []string) error
	Subscribe(l Listener) (unsubscribe func())
	Terminate() error
}
