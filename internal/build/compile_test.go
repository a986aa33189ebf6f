package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/extender/internal/workspace"
	"github.com/goplus/extender/pkgs/toolchain"
)

func TestCompile(t *testing.T) {
	root := t.TempDir()
	desc := writeExtension(t, root, "myext", "MyExt", map[string]string{
		"a.cpp":     "int a;",
		"sub/b.cpp": "int b;",
	})
	writeFile(t, filepath.Join(desc.RootDir, "include", "myext.h"), "")

	ws := newWorkspace(t)
	r := &fakeRunner{}
	c := &Compiler{Platform: testPlatform(), Workspace: ws, Runner: r}

	ext, err := c.Compile(context.Background(), desc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	objDir := ws.Path(workspace.ObjDir, "MyExt")
	wantObjs := []string{
		filepath.Join(objDir, "a.cpp_0.o"),
		filepath.Join(objDir, "b.cpp_1.o"),
	}
	if diff := cmp.Diff(wantObjs, ext.Objects); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
	if want := ws.Path(workspace.LibDir, "libMyExt.a"); ext.Archive != want {
		t.Errorf("Archive = %q, want %q", ext.Archive, want)
	}
	if ext.Symbol != "MyExt" {
		t.Errorf("Symbol = %q", ext.Symbol)
	}

	compiles := r.commands("cc")
	if len(compiles) != 2 {
		t.Fatalf("got %d compile commands, want 2", len(compiles))
	}
	want := []string{
		"cc", "-c", filepath.Join(desc.SourceDir, "a.cpp"), "-o", wantObjs[0],
		"-I/sdk/include",
		"-I" + filepath.Join(desc.RootDir, "include"),
		"-I" + ws.Path(workspace.IncludeDir),
		"-O2", "-g",
	}
	if diff := cmp.Diff(want, compiles[0]); diff != "" {
		t.Errorf("compile argv mismatch (-want +got):\n%s", diff)
	}

	archives := r.commands("ar")
	wantAr := [][]string{append([]string{"ar", "rcs", "-o", ext.Archive}, wantObjs...)}
	if diff := cmp.Diff(wantAr, archives); diff != "" {
		t.Errorf("archive argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWithoutSources(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "empty", "Empty", nil)
	ws := newWorkspace(t)
	r := &fakeRunner{}
	c := &Compiler{Platform: testPlatform(), Workspace: ws, Runner: r}

	ext, err := c.Compile(context.Background(), desc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(ext.Objects) != 0 {
		t.Errorf("Objects = %v, want none", ext.Objects)
	}
	if n := len(r.commands("cc")); n != 0 {
		t.Errorf("%d compile commands for an extension without sources", n)
	}
	// archive still runs with an empty objs list
	if diff := cmp.Diff([][]string{{"ar", "rcs", "-o", ext.Archive}}, r.commands("ar")); diff != "" {
		t.Errorf("archive argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileIncludesWithoutExtensionInclude(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "x", "X", map[string]string{"x.c": ""})
	ws := newWorkspace(t)
	r := &fakeRunner{}
	c := &Compiler{Platform: testPlatform(), Workspace: ws, Runner: r}

	if _, err := c.Compile(context.Background(), desc); err != nil {
		t.Fatal(err)
	}
	got := r.commands("cc")[0][5:8]
	want := []string{"-I/sdk/include", "-I" + ws.Path(workspace.IncludeDir), "-O2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("includes mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileSourceDirIsFile(t *testing.T) {
	root := t.TempDir()
	desc := writeExtension(t, root, "e", "E", nil)
	writeFile(t, desc.SourceDir, "not a directory")
	r := &fakeRunner{}
	c := &Compiler{Platform: testPlatform(), Workspace: newWorkspace(t), Runner: r}

	ext, err := c.Compile(context.Background(), desc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(ext.Objects) != 0 || len(r.commands("cc")) != 0 {
		t.Errorf("compiled %v from a file src", ext.Objects)
	}
}

func TestCompileFailureStops(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "bad", "Bad", map[string]string{
		"a.cpp": "", "b.cpp": "", "c.cpp": "",
	})
	ws := newWorkspace(t)
	boom := &toolchain.ExitError{Args: []string{"cc"}, Code: 1, Output: "b.cpp:1: error\n"}
	r := &fakeRunner{fail: func(args []string) error {
		if args[0] == "cc" && filepath.Base(args[2]) == "b.cpp" {
			return boom
		}
		return nil
	}}
	c := &Compiler{Platform: testPlatform(), Workspace: ws, Runner: r}

	_, err := c.Compile(context.Background(), desc)
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if be.Stage != StageCompile || be.Extension != "Bad" || filepath.Base(be.File) != "b.cpp" {
		t.Errorf("err = %+v", be)
	}
	var ee *toolchain.ExitError
	if !errors.As(err, &ee) || ee.Output != "b.cpp:1: error\n" {
		t.Errorf("toolchain output not preserved: %v", err)
	}
	if n := len(r.commands("cc")); n != 2 {
		t.Errorf("%d compile commands, want 2 (stop at first failure)", n)
	}
	if n := len(r.commands("ar")); n != 0 {
		t.Errorf("archive ran after a failed compile")
	}
}

func TestCompileArchiveFailureLeavesNoArchive(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "e", "E", map[string]string{"e.c": ""})
	ws := newWorkspace(t)
	r := &fakeRunner{fail: func(args []string) error {
		if args[0] == "ar" {
			os.WriteFile(args[3], []byte("partial"), 0o644)
			return &toolchain.ExitError{Args: args, Code: 1}
		}
		return nil
	}}
	c := &Compiler{Platform: testPlatform(), Workspace: ws, Runner: r}

	if _, err := c.Compile(context.Background(), desc); err == nil {
		t.Fatal("Compile succeeded")
	}
	if _, err := os.Stat(ws.Path(workspace.LibDir, "libE.a")); !os.IsNotExist(err) {
		t.Errorf("partial archive left behind: %v", err)
	}
}

func TestCompileMissingPlaceholder(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "e", "E", map[string]string{"e.c": ""})
	p := testPlatform()
	p.Compile = "cc {{src}} {{nope}}"
	r := &fakeRunner{}
	c := &Compiler{Platform: p, Workspace: newWorkspace(t), Runner: r}

	_, err := c.Compile(context.Background(), desc)
	var te *toolchain.TemplateError
	if !errors.As(err, &te) || te.Key != "nope" {
		t.Fatalf("err = %v, want TemplateError for nope", err)
	}
	if r.count() != 0 {
		t.Errorf("%d commands ran", r.count())
	}
}

func TestCompileCanceled(t *testing.T) {
	desc := writeExtension(t, t.TempDir(), "e", "E", map[string]string{"e.c": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeRunner{}
	c := &Compiler{Platform: testPlatform(), Workspace: newWorkspace(t), Runner: r}

	_, err := c.Compile(ctx, desc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if r.count() != 0 {
		t.Errorf("%d commands ran", r.count())
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"z.cpp", "a/b.mm", "a/a.c", "m.h"} {
		writeFile(t, filepath.Join(dir, rel), "")
	}
	got, err := SourceFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	var rels []string
	for _, p := range got {
		rel, _ := filepath.Rel(dir, p)
		rels = append(rels, filepath.ToSlash(rel))
	}
	want := []string{"a/a.c", "a/b.mm", "m.h", "z.cpp"}
	if diff := cmp.Diff(want, rels); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	none, err := SourceFiles(filepath.Join(dir, "missing"))
	if err != nil || len(none) != 0 {
		t.Errorf("missing dir = %v, %v", none, err)
	}

	// a regular file named like the source dir holds no sources
	notDir := filepath.Join(dir, "m.h")
	if files, err := SourceFiles(notDir); err != nil || len(files) != 0 {
		t.Errorf("SourceFiles(file) = %v, %v", files, err)
	}
}
