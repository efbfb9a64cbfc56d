package writerbackends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mediaconv/config"
	"mediaconv/models"
)

// Backend types
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendSFTP  = "sftp"
)

// Destination is a parsed output location. AccessInfo carries the
// backend-specific keys the upload functions read.
type Destination struct {
	Backend    string
	AccessInfo map[string]string
}

// ParseDestination turns a user-supplied destination into a backend and its
// access info. fileName fills in the object name when dest names a
// directory, a bucket or a prefix ending in "/".
//
//	""                      ./<fileName>
//	out/ | out/x.webp       local path
//	file:///tmp/x.webp      local path
//	s3://bucket/key         S3 object
//	gs://bucket/object      GCS object
//	sftp://user@host:22/p   SFTP upload
func ParseDestination(dest, fileName string) (Destination, error) {
	if !strings.Contains(dest, "://") {
		return localDestination(dest, fileName), nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid destination %q: %w", dest, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		key += fileName
	}

	switch u.Scheme {
	case "file":
		return localDestination(u.Path, fileName), nil
	case "s3":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("s3 destination needs a bucket: %q", dest)
		}
		return Destination{Backend: BackendS3, AccessInfo: map[string]string{
			"bucket": u.Host,
			"key":    key,
		}}, nil
	case "gs":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("gs destination needs a bucket: %q", dest)
		}
		return Destination{Backend: BackendGCS, AccessInfo: map[string]string{
			"bucket": u.Host,
			"object": key,
		}}, nil
	case "sftp":
		if u.Hostname() == "" || u.User == nil || u.User.Username() == "" {
			return Destination{}, fmt.Errorf("sftp destination needs user@host: %q", dest)
		}
		info := map[string]string{
			"host":       u.Hostname(),
			"port":       u.Port(),
			"user":       u.User.Username(),
			"remotePath": "/" + key,
		}
		if pw, ok := u.User.Password(); ok {
			info["password"] = pw
		}
		return Destination{Backend: BackendSFTP, AccessInfo: info}, nil
	}
	return Destination{}, fmt.Errorf("unknown destination scheme %q", u.Scheme)
}

func localDestination(p, fileName string) Destination {
	dir, name := filepath.Split(p)
	if name == "" {
		name = fileName
	} else if st, err := os.Stat(p); err == nil && st.IsDir() {
		dir, name = p, fileName
	}
	return Destination{Backend: BackendLocal, AccessInfo: map[string]string{
		"baseDir":  dir,
		"filename": name,
	}}
}

// WithCredentials fills in backend credentials from configuration without
// overriding values already present in the destination.
func (d Destination) WithCredentials(sinks config.SinksConfig) (Destination, error) {
	info := make(map[string]string, len(d.AccessInfo)+4)
	for k, v := range d.AccessInfo {
		info[k] = v
	}
	set := func(k, v string) {
		if v != "" && info[k] == "" {
			info[k] = v
		}
	}
	switch d.Backend {
	case BackendS3:
		set("accessKey", sinks.S3.AccessKey)
		set("secretKey", sinks.S3.SecretKey)
		set("region", sinks.S3.Region)
		set("endpoint", sinks.S3.Endpoint)
	case BackendGCS:
		set("credentialsFile", sinks.GCS.CredentialsFile)
	case BackendSFTP:
		set("password", sinks.SFTP.Password)
		set("knownHosts", sinks.SFTP.KnownHostsFile)
		if sinks.SFTP.KeyFile != "" && info["privateKey"] == "" {
			key, err := os.ReadFile(sinks.SFTP.KeyFile)
			if err != nil {
				return Destination{}, fmt.Errorf("read sftp key file: %w", err)
			}
			info["privateKey"] = string(key)
		}
	}
	return Destination{Backend: d.Backend, AccessInfo: info}, nil
}

// String renders the destination for logs, without secrets.
func (d Destination) String() string {
	a := d.AccessInfo
	switch d.Backend {
	case BackendLocal:
		return filepath.Join(a["baseDir"], a["filename"])
	case BackendS3:
		return "s3://" + a["bucket"] + "/" + a["key"]
	case BackendGCS:
		return "gs://" + a["bucket"] + "/" + a["object"]
	case BackendSFTP:
		host := a["host"]
		if a["port"] != "" {
			host += ":" + a["port"]
		}
		return "sftp://" + a["user"] + "@" + host + path.Clean(a["remotePath"])
	}
	return d.Backend
}

// WriteResult stores a conversion result at dest and returns where it went.
func WriteResult(ctx context.Context, dest string, res *models.ConversionResult, sinks config.SinksConfig) (Destination, error) {
	d, err := ParseDestination(dest, res.FileName)
	if err != nil {
		return Destination{}, err
	}
	d, err = d.WithCredentials(sinks)
	if err != nil {
		return Destination{}, err
	}
	d.AccessInfo["contentType"] = res.MimeType
	if err := Write(ctx, d.AccessInfo, bytes.NewReader(res.Data), d.Backend); err != nil {
		return Destination{}, err
	}
	return d, nil
}

// Write dispatches reader to the backend named by backendType.
func Write(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	switch backendType {
	case BackendLocal:
		if err := UploadToLocal(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to write local file: %w", err)
		}
	case BackendS3:
		if err := UploadToS3WithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case BackendGCS:
		if err := UploadToGCS(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case BackendSFTP:
		if err := UploadToSFTPWithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", backendType)
	}
	return nil
}
