package converter

import (
	"context"
	"errors"
	"sync"
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

type progressLog struct {
	mu     sync.Mutex
	ratios []float64
}

func (p *progressLog) Report(pr models.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratios = append(p.ratios, pr.Ratio)
}

func (p *progressLog) get() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.ratios...)
}

func newHandle(t *testing.T, script *enginetest.Script) (*engine.Handle, *engine.FFmpeg) {
	t.Helper()
	eng, err := enginetest.NewEngine(script)
	require.NoError(t, err)
	return engine.NewHandle(eng), eng
}

func request(name string, from, to models.MediaFormat) models.ConversionRequest {
	return models.ConversionRequest{
		File: models.InputFile{Name: name, Data: []byte("source-bytes")},
		From: from,
		To:   to,
	}
}

func assertNoStagedFiles(t *testing.T, e engine.Engine) {
	t.Helper()
	names, err := enginetest.Names(e)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConvertImage(t *testing.T) {
	script := &enginetest.Script{Output: []byte("webp-bytes")}
	h, eng := newHandle(t, script)
	prog := &progressLog{}

	res, err := Convert(context.Background(), h, request("Holiday Photo.PNG", "png", "webp"), prog)
	require.NoError(t, err)

	assert.Equal(t, []byte("webp-bytes"), res.Data)
	assert.Equal(t, "image/webp", res.MimeType)
	assert.Equal(t, "Holiday Photo.webp", res.FileName)
	assert.Equal(t, []float64{0.1, 1.0}, prog.get())
	assert.Equal(t, []string{
		"-i", "holidayphoto.png", "-c:v", "libwebp", "-quality", "75", "-frames:v", "1", "-y", "holidayphoto.webp",
	}, script.ConversionArgs())
	assertNoStagedFiles(t, eng)
}

func TestConvertVideoReportsMonotonicProgress(t *testing.T) {
	script := &enginetest.Script{Output: []byte("webm-bytes"), Duration: 8 * time.Second, Steps: 4}
	h, eng := newHandle(t, script)
	prog := &progressLog{}

	req := request("clip.mp4", "mp4", "webm")
	req.Options = models.ConversionOptions{Quality: models.QualityLow, Speed: models.SpeedSlow}
	res, err := Convert(context.Background(), h, req, prog)
	require.NoError(t, err)
	assert.Equal(t, "video/webm", res.MimeType)
	assert.Equal(t, "clip.webm", res.FileName)

	ratios := prog.get()
	require.NotEmpty(t, ratios)
	for i := 1; i < len(ratios); i++ {
		assert.GreaterOrEqual(t, ratios[i], ratios[i-1])
	}
	assert.Equal(t, 1.0, ratios[len(ratios)-1])
	assert.Contains(t, script.ConversionArgs(), "-cpu-used")
	assertNoStagedFiles(t, eng)
}

func TestConvertRejectsBeforeTouchingEngine(t *testing.T) {
	cases := []struct {
		from, to models.MediaFormat
		want     error
	}{
		{"bmp", "png", failures.ErrUnknownFormat},
		{"png", "tiff", failures.ErrUnknownFormat},
		{"png", "mp4", failures.ErrUnsupportedConversion},
		{"mp4", "mp4", failures.ErrUnsupportedConversion},
	}
	for _, tc := range cases {
		script := &enginetest.Script{Output: []byte("x")}
		h, _ := newHandle(t, script)
		_, err := Convert(context.Background(), h, request("a", tc.from, tc.to), progress.Discard)
		assert.ErrorIs(t, err, tc.want, "%s -> %s", tc.from, tc.to)
		assert.Empty(t, script.Calls())
	}
}

func TestConvertRejectsInvalidOptions(t *testing.T) {
	h, _ := newHandle(t, &enginetest.Script{Output: []byte("x")})
	req := request("a.png", "png", "jpg")
	req.Options.Speed = "warp"
	_, err := Convert(context.Background(), h, req, nil)
	assert.ErrorIs(t, err, failures.ErrUnsupportedConversion)
}

func TestConvertFailureKinds(t *testing.T) {
	diskFull := errors.New("disk full")

	cases := []struct {
		name                      string
		output                    []byte
		execErr                   error
		writeErr, listErr, readEr error
		want                      error
	}{
		{name: "staging", output: []byte("x"), writeErr: diskFull, want: failures.ErrInputStagingFailed},
		{name: "exec", output: []byte("x"), execErr: enginetest.ErrScripted, want: failures.ErrEncodingFailed},
		{name: "empty output", output: []byte{}, want: failures.ErrEncodingFailed},
		{name: "missing output", want: failures.ErrEncodingFailed},
		{name: "listing", output: []byte("x"), listErr: diskFull, want: failures.ErrEncodingFailed},
		{name: "read", output: []byte("x"), readEr: diskFull, want: failures.ErrOutputReadFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng, err := enginetest.NewEngine(&enginetest.Script{Output: tc.output, Err: tc.execErr})
			require.NoError(t, err)
			faulty := &enginetest.Faulty{Engine: eng, WriteErr: tc.writeErr, ListErr: tc.listErr, ReadErr: tc.readEr}

			res, err := Convert(context.Background(), engine.NewHandle(faulty), request("photo.png", "png", "jpg"), nil)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.want)

			var ce *failures.ConversionError
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Message)

			assertNoStagedFiles(t, eng)
		})
	}
}

func TestConvertCleanupFailureDoesNotFailConversion(t *testing.T) {
	eng, err := enginetest.NewEngine(&enginetest.Script{Output: []byte("jpg-bytes")})
	require.NoError(t, err)
	faulty := &enginetest.Faulty{Engine: eng, DeleteErr: errors.New("busy")}

	res, err := Convert(context.Background(), engine.NewHandle(faulty), request("photo.png", "png", "jpg"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpg-bytes"), res.Data)
	assert.ElementsMatch(t, []string{"photo.png", "photo.jpg"}, faulty.Deleted())
}

func TestConvertCleanupOnlyDeletesPresentFiles(t *testing.T) {
	eng, err := enginetest.NewEngine(&enginetest.Script{Output: []byte("x")})
	require.NoError(t, err)
	faulty := &enginetest.Faulty{Engine: eng, WriteErr: errors.New("quota")}

	_, err = Convert(context.Background(), engine.NewHandle(faulty), request("photo.png", "png", "jpg"), nil)
	require.ErrorIs(t, err, failures.ErrInputStagingFailed)
	assert.Empty(t, faulty.Deleted())
}

func TestConvertCancellation(t *testing.T) {
	script := &enginetest.Script{Output: []byte("x"), Block: make(chan struct{}), Started: make(chan struct{}, 1)}
	h, eng := newHandle(t, script)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Convert(ctx, h, request("clip.mp4", "mp4", "mkv"), nil)
		done <- err
	}()
	<-script.Started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, failures.ErrEncodingFailed)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("conversion did not stop after cancel")
	}
	assertNoStagedFiles(t, eng)
}

func TestConvertSerializesPerHandle(t *testing.T) {
	script := &enginetest.Script{Output: []byte("x"), Block: make(chan struct{}), Started: make(chan struct{}, 2)}
	h, _ := newHandle(t, script)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"first.png", "second.png"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = Convert(context.Background(), h, request(name, "png", "jpg"), nil)
		}(i, name)
	}

	<-script.Started
	// the second conversion must not reach the engine while the first runs
	select {
	case <-script.Started:
		t.Fatal("two conversions ran on one engine at once")
	case <-time.After(50 * time.Millisecond):
	}

	close(script.Block)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
}

func TestConvertWaitingCallerCancelled(t *testing.T) {
	script := &enginetest.Script{Output: []byte("x"), Block: make(chan struct{}), Started: make(chan struct{}, 2)}
	h, _ := newHandle(t, script)

	go func() {
		_, _ = Convert(context.Background(), h, request("first.png", "png", "jpg"), nil)
	}()
	<-script.Started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Convert(ctx, h, request("second.png", "png", "jpg"), nil)
	assert.ErrorIs(t, err, failures.ErrEncodingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(script.Block)
}

func TestConvertWithoutHandle(t *testing.T) {
	_, err := Convert(context.Background(), nil, request("a.png", "png", "jpg"), nil)
	assert.ErrorIs(t, err, failures.ErrEngineLoadFailed)
}
