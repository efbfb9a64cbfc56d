package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mediaconv/logger"
)

// UploadToLocal writes reader to {baseDir}/{filename}. The file appears
// under its final name only once fully written.
func UploadToLocal(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	baseDir := accessInfo["baseDir"]
	filename := accessInfo["filename"]
	if filename == "" {
		return fmt.Errorf("missing required accessInfo key: filename")
	}
	if baseDir == "" {
		baseDir = "."
	}
	fullPath := filepath.Join(baseDir, filename)

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(baseDir, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", baseDir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved '%s'", fullPath)
	return nil
}
