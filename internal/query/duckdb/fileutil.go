package duckdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/storage"
)

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return file.Sync()
}

// stage copies an s3:// object into the staging directory and returns the local path.
// A staged copy with the object's size and modification time is reused.
func (a *Adapter) stage(ctx context.Context, raw string) (string, error) {
	remote, err := a.resolveRemote(raw)
	if err != nil {
		return "", query.NewEngineError(query.LoadFailed, "stage "+raw, err)
	}
	info, err := a.store.Stat(ctx, remote.Key)
	if err != nil {
		return "", query.NewEngineError(query.LoadFailed, "file does not exist: "+raw, err)
	}

	if err := os.MkdirAll(a.cfg.StagingDirectory, 0o755); err != nil {
		return "", query.NewEngineError(query.LoadFailed, "create staging directory", err)
	}
	localPath := filepath.Join(a.cfg.StagingDirectory, remote.FileName())
	if isStaged(localPath, info) {
		a.logger.Debug("reusing staged file", slog.String("path", raw), slog.String("local_path", localPath))
		return localPath, nil
	}

	body, err := a.store.Download(ctx, remote.Key)
	if err != nil {
		return "", query.NewEngineError(query.LoadFailed, "file does not exist: "+raw, err)
	}
	defer func() { _ = body.Close() }()
	if err := writeFile(localPath, body); err != nil {
		return "", query.NewEngineError(query.LoadFailed, "write staged file "+localPath, err)
	}
	if !info.LastModified.IsZero() {
		_ = os.Chtimes(localPath, info.LastModified, info.LastModified)
	}
	return localPath, nil
}

func isStaged(localPath string, info storage.ObjectInfo) bool {
	if info.LastModified.IsZero() {
		return false
	}
	local, err := os.Stat(localPath)
	if err != nil {
		return false
	}
	return local.Size() == info.Size && local.ModTime().Unix() == info.LastModified.Unix()
}

// upload copies a local file to the object an s3:// path names.
func (a *Adapter) upload(ctx context.Context, localPath string, remote storage.RemotePath) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}
	if _, err := a.store.Upload(ctx, remote.Key, file, stat.Size(), storage.ContentTypeFor(remote.FileName())); err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	return nil
}

func (a *Adapter) resolveRemote(raw string) (storage.RemotePath, error) {
	if a.store == nil {
		return storage.RemotePath{}, fmt.Errorf("object store is not configured")
	}
	remote, err := storage.ParseRemotePath(raw)
	if err != nil {
		return storage.RemotePath{}, err
	}
	if remote.Bucket != a.store.Bucket() {
		return storage.RemotePath{}, fmt.Errorf("bucket %q is not configured", remote.Bucket)
	}
	return remote, nil
}
