package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const RemoteScheme = "s3://"

var (
	bucketPattern        = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
)

// RemotePath is an object addressed as s3://bucket/key.
type RemotePath struct {
	Bucket string
	Key    string
}

func (p RemotePath) String() string {
	return RemoteScheme + p.Bucket + "/" + p.Key
}

// FileName is the last key component, used as the staged local file name.
func (p RemotePath) FileName() string {
	return path.Base(p.Key)
}

func IsRemote(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), RemoteScheme)
}

// ParseRemotePath splits an s3:// URI into bucket and key. The key's last component
// must be a plain file name since it becomes a local file and a table name.
func ParseRemotePath(raw string) (RemotePath, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, RemoteScheme) {
		return RemotePath{}, fmt.Errorf("not an %s path: %q", RemoteScheme, raw)
	}
	rest := strings.TrimPrefix(raw, RemoteScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok {
		return RemotePath{}, fmt.Errorf("object key is required: %q", raw)
	}
	if !bucketPattern.MatchString(bucket) {
		return RemotePath{}, fmt.Errorf("invalid bucket: %q", bucket)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return RemotePath{}, fmt.Errorf("object key is required: %q", raw)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return RemotePath{}, fmt.Errorf("invalid object key: %q", key)
	}
	if err := validatePathComponent(path.Base(cleaned), "file name"); err != nil {
		return RemotePath{}, err
	}
	return RemotePath{Bucket: bucket, Key: cleaned}, nil
}

// ContentTypeFor maps a tabular file name to the content type used on upload.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "application/octet-stream"
	}
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
