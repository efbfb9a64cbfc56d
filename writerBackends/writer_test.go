package writerbackends

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"mediaconv/config"
	"mediaconv/models"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		backend string
		info    map[string]string
	}{
		{"empty uses file name", "", BackendLocal, map[string]string{"baseDir": "", "filename": "clip.webm"}},
		{"local dir", "out/", BackendLocal, map[string]string{"baseDir": "out/", "filename": "clip.webm"}},
		{"local file", "out/x.webm", BackendLocal, map[string]string{"baseDir": "out/", "filename": "x.webm"}},
		{"file scheme", "file:///tmp/r/x.webm", BackendLocal, map[string]string{"baseDir": "/tmp/r/", "filename": "x.webm"}},
		{"s3 key", "s3://media/out/x.webm", BackendS3, map[string]string{"bucket": "media", "key": "out/x.webm"}},
		{"s3 prefix", "s3://media/out/", BackendS3, map[string]string{"bucket": "media", "key": "out/clip.webm"}},
		{"s3 bucket only", "s3://media", BackendS3, map[string]string{"bucket": "media", "key": "clip.webm"}},
		{"gs object", "gs://media/a/b.webm", BackendGCS, map[string]string{"bucket": "media", "object": "a/b.webm"}},
		{"sftp", "sftp://bob@files.local:2222/up/", BackendSFTP, map[string]string{
			"host": "files.local", "port": "2222", "user": "bob", "remotePath": "/up/clip.webm",
		}},
		{"sftp password", "sftp://bob:pw@files.local/x.webm", BackendSFTP, map[string]string{
			"host": "files.local", "port": "", "user": "bob", "password": "pw", "remotePath": "/x.webm",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDestination(tt.dest, "clip.webm")
			require.NoError(t, err)
			assert.Equal(t, tt.backend, d.Backend)
			assert.Equal(t, tt.info, d.AccessInfo)
		})
	}
}

func TestParseDestinationErrors(t *testing.T) {
	for _, dest := range []string{
		"ftp://host/x",
		"s3:///key",
		"gs:///obj",
		"sftp://files.local/x",
	} {
		_, err := ParseDestination(dest, "x.png")
		assert.Error(t, err, dest)
	}
}

func TestParseDestinationExistingDir(t *testing.T) {
	dir := t.TempDir()
	d, err := ParseDestination(dir, "out.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.png"), d.String())
}

func TestWithCredentials(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "id")
	require.NoError(t, os.WriteFile(keyFile, []byte("PEM"), 0o600))

	sinks := config.SinksConfig{
		S3:   config.S3Config{Region: "eu-west-1", AccessKey: "ak", SecretKey: "sk", Endpoint: "http://minio:9000"},
		GCS:  config.GCSConfig{CredentialsFile: "/etc/gcs.json"},
		SFTP: config.SFTPConfig{Password: "cfgpw", KeyFile: keyFile, KnownHostsFile: "/etc/kh"},
	}

	s3d, err := Destination{Backend: BackendS3, AccessInfo: map[string]string{"bucket": "b", "key": "k"}}.WithCredentials(sinks)
	require.NoError(t, err)
	assert.Equal(t, "ak", s3d.AccessInfo["accessKey"])
	assert.Equal(t, "eu-west-1", s3d.AccessInfo["region"])
	assert.Equal(t, "http://minio:9000", s3d.AccessInfo["endpoint"])

	gcs, err := Destination{Backend: BackendGCS, AccessInfo: map[string]string{}}.WithCredentials(sinks)
	require.NoError(t, err)
	assert.Equal(t, "/etc/gcs.json", gcs.AccessInfo["credentialsFile"])

	orig := map[string]string{"password": "urlpw"}
	sd, err := Destination{Backend: BackendSFTP, AccessInfo: orig}.WithCredentials(sinks)
	require.NoError(t, err)
	assert.Equal(t, "urlpw", sd.AccessInfo["password"], "destination values win")
	assert.Equal(t, "PEM", sd.AccessInfo["privateKey"])
	assert.Equal(t, "/etc/kh", sd.AccessInfo["knownHosts"])
	assert.NotContains(t, orig, "privateKey", "input map untouched")
}

func TestWriteResultLocal(t *testing.T) {
	dir := t.TempDir()
	res := &models.ConversionResult{Data: []byte("webm-bytes"), MimeType: "video/webm", FileName: "clip.webm"}

	d, err := WriteResult(context.Background(), dir+"/nested/", res, config.SinksConfig{})
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, d.Backend)

	got, err := os.ReadFile(filepath.Join(dir, "nested", "clip.webm"))
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestUploadToLocalMissingName(t *testing.T) {
	err := UploadToLocal(context.Background(), map[string]string{"baseDir": t.TempDir()}, strings.NewReader("x"))
	assert.Error(t, err)
}

func TestWriteUnknownBackend(t *testing.T) {
	err := Write(context.Background(), nil, strings.NewReader(""), "ftp")
	assert.ErrorContains(t, err, "unknown backend type")
}

func TestUploadToS3Validation(t *testing.T) {
	err := UploadToS3WithCreds(context.Background(), map[string]string{"bucket": "b"}, strings.NewReader(""))
	assert.ErrorContains(t, err, "bucket, key")

	err = UploadToS3WithCreds(context.Background(), map[string]string{"bucket": "b", "key": "k"}, strings.NewReader(""))
	assert.ErrorContains(t, err, "missing S3 credentials")
}

func TestUploadToS3Endpoint(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		mu.Lock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := UploadToS3WithCreds(context.Background(), map[string]string{
		"bucket":      "media",
		"key":         "out/clip.webm",
		"accessKey":   "ak",
		"secretKey":   "sk",
		"endpoint":    srv.URL,
		"contentType": "video/webm",
	}, bytes.NewReader([]byte("payload")))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/media/out/clip.webm", path)
	assert.Equal(t, "video/webm", ctype)
}

func TestUploadToGCSValidation(t *testing.T) {
	err := UploadToGCS(context.Background(), map[string]string{"bucket": "b"}, strings.NewReader(""))
	assert.ErrorContains(t, err, "bucket, object")
}

func TestUploadToSFTPValidation(t *testing.T) {
	err := UploadToSFTPWithCreds(context.Background(), map[string]string{"host": "h", "user": "u"}, strings.NewReader(""))
	assert.ErrorContains(t, err, "remotePath")

	err = UploadToSFTPWithCreds(context.Background(), map[string]string{
		"host": "h", "user": "u", "remotePath": "/x",
	}, strings.NewReader(""))
	assert.ErrorContains(t, err, "no auth method")
}

func TestPutSFTP(t *testing.T) {
	c1, c2 := net.Pipe()
	server := sftp.NewRequestServer(c1, sftp.InMemHandler())
	go server.Serve()
	defer server.Close()

	client, err := sftp.NewClientPipe(c2, c2)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, putSFTP(client, "/uploads/2024/clip.webm", strings.NewReader("remote-bytes")))

	st, err := client.Stat("/uploads/2024")
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	f, err := client.Open("/uploads/2024/clip.webm")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(got))
}

func TestHostKeyCallbackMissingFile(t *testing.T) {
	_, err := hostKeyCallback(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	cb, err := hostKeyCallback("")
	require.NoError(t, err)
	assert.NotNil(t, cb)
}
