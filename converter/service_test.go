package converter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaconv/engine"
	"mediaconv/engine/enginetest"
	"mediaconv/failures"
	"mediaconv/models"
	"mediaconv/progress"
)

type scriptLoader struct {
	script *enginetest.Script
	loads  atomic.Int32
	err    error
}

func (l *scriptLoader) Load(context.Context) (engine.Engine, error) {
	l.loads.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	eng, err := enginetest.NewEngine(l.script)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

func TestServiceConvert(t *testing.T) {
	l := &scriptLoader{script: &enginetest.Script{Output: []byte("png-bytes")}}
	svc := NewService(engine.NewManager(l))
	defer svc.Close()

	assert.False(t, svc.IsReady())
	ch := progress.NewChannel(8)
	res, err := svc.Convert(context.Background(), models.InputFile{Name: "scan.jpeg", Data: []byte("jpeg")},
		models.FormatJPEG, models.FormatPNG, ch, models.ConversionOptions{Quality: models.QualityHigh})
	ch.Close()
	require.NoError(t, err)

	assert.Equal(t, "scan.png", res.FileName)
	assert.Equal(t, "image/png", res.MimeType)
	assert.True(t, svc.IsReady())
	assert.Equal(t, engine.StateReady, svc.State())

	var last models.Progress
	for p := range ch.Events() {
		last = p
	}
	assert.Equal(t, 1.0, last.Ratio)
	assert.Contains(t, l.script.ConversionArgs(), "-compression_level")
}

func TestServiceValidatesBeforeLoading(t *testing.T) {
	l := &scriptLoader{script: &enginetest.Script{Output: []byte("x")}}
	svc := NewService(engine.NewManager(l))

	_, err := svc.Convert(context.Background(), models.InputFile{Name: "a.gif"}, "gif", "png", nil, models.ConversionOptions{})
	assert.ErrorIs(t, err, failures.ErrUnknownFormat)

	_, err = svc.Convert(context.Background(), models.InputFile{Name: "a.png"}, "png", "mkv", nil, models.ConversionOptions{})
	assert.ErrorIs(t, err, failures.ErrUnsupportedConversion)

	_, err = svc.Convert(context.Background(), models.InputFile{Name: "a.png"}, "png", "jpg", nil, models.ConversionOptions{Quality: "max"})
	assert.ErrorIs(t, err, failures.ErrUnsupportedConversion)

	assert.Zero(t, l.loads.Load())
	assert.Equal(t, engine.StateUninitialized, svc.State())
}

func TestServiceEngineLoadFailure(t *testing.T) {
	l := &scriptLoader{err: errors.New("ffmpeg not found in PATH")}
	svc := NewService(engine.NewManager(l))

	_, err := svc.Convert(context.Background(), models.InputFile{Name: "a.png", Data: []byte("x")}, "png", "jpg", nil, models.ConversionOptions{})
	require.ErrorIs(t, err, failures.ErrEngineLoadFailed)
	assert.Equal(t, "engine not ready", err.(*failures.ConversionError).Message)
	assert.True(t, err.(*failures.ConversionError).Retryable())
	assert.Equal(t, engine.StateFailed, svc.State())
}

func TestServiceExecTimeout(t *testing.T) {
	l := &scriptLoader{script: &enginetest.Script{Output: []byte("x"), Block: make(chan struct{})}}
	svc := NewService(engine.NewManager(l), WithExecTimeout(30*time.Millisecond))
	defer close(l.script.Block)

	_, err := svc.Convert(context.Background(), models.InputFile{Name: "clip.mov", Data: []byte("v")}, "mov", "mp4", nil, models.ConversionOptions{})
	assert.ErrorIs(t, err, failures.ErrEncodingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceWarmupAndClose(t *testing.T) {
	l := &scriptLoader{script: &enginetest.Script{}}
	svc := NewService(engine.NewManager(l))

	require.NoError(t, svc.Warmup(context.Background()))
	assert.True(t, svc.IsReady())
	require.NoError(t, svc.Close())
	assert.False(t, svc.IsReady())

	d, err := svc.Describe(models.FormatFLV)
	require.NoError(t, err)
	assert.Equal(t, "video/x-flv", d.MimeType)
	assert.True(t, svc.IsConversionSupported(models.FormatFLV, models.FormatMKV))
	assert.False(t, svc.IsConversionSupported(models.FormatFLV, models.FormatPNG))
}
