package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "parquetsql dev") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestSampleCommandWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"sample", "--out", dir, "--rows", "12", "--seed", "3", "--name", "clicks"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, name := range []string{"clicks.parquet", "clicks.csv", "clicks.tsv"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("Stat(%s) error = %v", name, err)
		}
		if !strings.Contains(out.String(), path) {
			t.Fatalf("output %q does not list %s", out.String(), path)
		}
	}
}

func TestSampleUploadRequiresObjectStore(t *testing.T) {
	t.Setenv("PARQUETSQL_OBJECTSTORE_ENDPOINT", "")
	t.Setenv("PARQUETSQL_OBJECTSTORE_BUCKET", "")
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"sample", "--out", t.TempDir(), "--rows", "2", "--upload", "samples"})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "--upload needs") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestRunCommandRequiresFile(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("Execute() without FILE expected error")
	}
}
