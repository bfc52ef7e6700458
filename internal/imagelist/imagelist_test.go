package imagelist

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writePNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestBuildDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "nested", "deeper"), 0755); err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(root, "a.png"),
		filepath.Join(root, "nested", "b.png"),
		filepath.Join(root, "nested", "deeper", "no-extension"),
	}
	for _, p := range want {
		writePNG(t, p)
	}

	// not images, even with a misleading extension
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "fake.png"), []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Build(root)
	if err != nil {
		t.Fatal(err)
	}

	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("Build() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Build() = %v, want %v", got, want)
		}
	}
}

func TestBuildSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.png")
	writePNG(t, path)

	got, err := Build(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != path {
		t.Fatalf("Build(file) = %v", got)
	}
}

func TestBuildMissing(t *testing.T) {
	got, err := Build(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected an error for a missing path")
	}
	if len(got) != 0 {
		t.Fatalf("Build(missing) = %v, want empty", got)
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	got, err := Build(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Build(empty) = %v", got)
	}
}

func TestShuffleKeepsElements(t *testing.T) {
	list := []string{"a", "b", "c", "d", "e"}
	Shuffle(list)

	sorted := append([]string(nil), list...)
	sort.Strings(sorted)
	for i, v := range []string{"a", "b", "c", "d", "e"} {
		if sorted[i] != v {
			t.Fatalf("Shuffle lost elements: %v", list)
		}
	}
}
