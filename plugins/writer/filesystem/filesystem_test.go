package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"pagegen/pkg/contract"
)

func noTemp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomicReplaceExisting 原子写入并替换已存在目标
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, v := range []string{"[1]", "[2]"} {
		if err := w.Write(context.Background(), "pages.json", bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "pages.json"))
	if err != nil || string(b) != "[2]" {
		t.Fatalf("unexpected file %v %q", err, b)
	}
	noTemp(t, dir)
}

// TestWriteNoOverwrite 关闭覆盖时保留已有文件
func TestWriteNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	off := false
	w, _ := New(&Options{OutputDir: dir, Overwrite: &off})
	if err := w.Write(context.Background(), "summary.json", strings.NewReader("a")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := w.Write(context.Background(), "summary.json", strings.NewReader("b"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expect ErrExist, got %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "summary.json"))
	if string(b) != "a" {
		t.Fatalf("content replaced: %q", b)
	}
}

// TestFlatStripsDirs 扁平模式只保留文件名
func TestFlatStripsDirs(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	p, err := w.Path("run/a/pages.json")
	if err != nil || p != filepath.Join(dir, "pages.json") {
		t.Fatalf("flat path %q %v", p, err)
	}
	p, err = w.Path("../../escape.json")
	if err != nil || p != filepath.Join(dir, "escape.json") {
		t.Fatalf("flat should neutralise parents: %q %v", p, err)
	}
}

// TestMapPathInvalid 非扁平模式下越界路径
func TestMapPathInvalid(t *testing.T) {
	dir := t.TempDir()
	flat := false
	w, _ := New(&Options{OutputDir: dir, Flat: &flat})
	cases := []string{"..", ".", "../bad", "a/../../bad", "/abs"}
	if runtime.GOOS == "windows" {
		cases = append(cases, `C:\abs`)
	}
	for _, id := range cases {
		if _, err := w.mapPath(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %s expect invalid, got %v", id, err)
		}
	}
	if err := w.Write(context.Background(), "../bad", bytes.NewBufferString("x")); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestWriteNonAtomicSubdir 非原子写入并创建子目录
func TestWriteNonAtomicSubdir(t *testing.T) {
	dir := t.TempDir()
	flat, atomic := false, false
	w, _ := New(&Options{OutputDir: dir, Flat: &flat, Atomic: &atomic})
	if err := w.Write(context.Background(), "sub/out.json", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b, err := os.ReadFile(filepath.Join(dir, "sub", "out.json")); err != nil || string(b) != "v" {
		t.Fatalf("file not created: %v %q", err, b)
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.json", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("expect ErrConfiguration for nil opts")
	}
	if _, err := New(&Options{OutputDir: "  "}); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("expect ErrConfiguration for empty output dir")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 拷贝失败时不残留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.json", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
