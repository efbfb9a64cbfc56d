package writerbackends

import (
	"context"
	"fmt"
	"io"

	"mediaconv/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCS uploads reader to bucket/object. Credentials come from
// "credentialsFile" when set, otherwise from the environment's default
// application credentials. "endpoint" targets an emulator without auth.
func UploadToGCS(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	bucket := accessInfo["bucket"]
	object := accessInfo["object"]
	if bucket == "" || object == "" {
		return fmt.Errorf("missing required accessInfo keys: bucket, object")
	}

	var opts []option.ClientOption
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else if file := accessInfo["credentialsFile"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if ct := accessInfo["contentType"]; ct != "" {
		wc.ContentType = ct
	}

	if _, err := io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", object, bucket)
	return nil
}
