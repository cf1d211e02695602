package main

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"matrixlink/config"
	"matrixlink/host/link"
	"matrixlink/imaging"
	"matrixlink/matrix"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	opts, err := linkOptions(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("linkOptions failed: %v", err)
	}

	l, remote, stop, err := startDryRun(cfg, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("startDryRun failed: %v", err)
	}
	t.Cleanup(stop)

	var out bytes.Buffer
	sh := newShell(matrix.New(), l, link.ModeRows, &out)
	sh.remote = remote
	return sh, &out
}

func TestShellSetAndSend(t *testing.T) {
	sh, out := newTestShell(t)

	script := "set 0 0 ff0000\nset 15 15 #00ff80\nsend\nstats\nquit\nset 1 1 ffffff\n"
	if err := sh.run(strings.NewReader(script)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !sh.remote.Matrix().Equal(sh.matrix) {
		t.Errorf("device matrix differs from host matrix:\n%s", sh.remote.Matrix())
	}
	if p, _ := sh.matrix.Pixel(1, 1); p.Red != 0 {
		t.Error("commands after quit were executed")
	}
	if !strings.Contains(out.String(), "Applied 256 pixels in 16 lines") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out.String(), "Goodbye!") {
		t.Error("missing goodbye")
	}
}

func TestShellSendModes(t *testing.T) {
	sh, out := newTestShell(t)
	sh.matrix.Fill(1, 2, 3)

	for _, args := range [][]string{{"send", "full"}, {"send", "segments"}, {"send", "row", "4"}} {
		out.Reset()
		if err := sh.exec(args); err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
		if !strings.Contains(out.String(), "Applied") {
			t.Errorf("%v: unexpected output %q", args, out)
		}
	}
	if !sh.remote.Matrix().Equal(sh.matrix) {
		t.Error("device matrix differs from host matrix")
	}
}

func TestShellErrors(t *testing.T) {
	sh, _ := newTestShell(t)

	testCases := [][]string{
		{"set", "0", "0"},
		{"set", "16", "0", "ffffff"},
		{"set", "a", "0", "ffffff"},
		{"set", "0", "0", "fffff"},
		{"fill", "zzzzzz"},
		{"mode", "diagonal"},
		{"send", "row", "x"},
		{"send", "row", "16"},
		{"send", "a", "b", "c"},
		{"load"},
		{"load", "missing.png"},
		{"bogus"},
	}
	for _, args := range testCases {
		if err := sh.exec(args); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestShellModeAndClear(t *testing.T) {
	sh, out := newTestShell(t)

	if err := sh.exec([]string{"mode", "segments"}); err != nil {
		t.Fatal(err)
	}
	if sh.mode != link.ModeSegments {
		t.Errorf("expected segments mode, got %s", sh.mode)
	}
	sh.exec([]string{"mode"})
	if !strings.Contains(out.String(), "segments") {
		t.Errorf("mode not printed: %q", out)
	}

	sh.exec([]string{"fill", "0xffffff"})
	sh.exec([]string{"clear"})
	if !sh.matrix.Equal(matrix.New()) {
		t.Error("clear left pixels set")
	}
}

func TestShellLoadImage(t *testing.T) {
	sh, _ := newTestShell(t)

	src := matrix.New()
	src.Fill(0x10, 0x20, 0x30)
	path := filepath.Join(t.TempDir(), "tile.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	png.Encode(f, imaging.Snapshot(src))
	f.Close()

	if err := sh.exec([]string{"load", path, "8", "8"}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p, _ := sh.matrix.Pixel(8, 8); p.RGBA() != (color.RGBA{0x10, 0x20, 0x30, 0xFF}) {
		t.Errorf("unexpected pixel %v", p)
	}
	if p, _ := sh.matrix.Pixel(7, 7); p.Red != 0 {
		t.Errorf("pixel before origin changed: %v", p)
	}
}

func TestStartDryRunRejectsUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Codec.Format = "morse"
	opts, err := linkOptions(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := startDryRun(cfg, opts, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown line format")
	}
}

func TestParseColor(t *testing.T) {
	testCases := []struct {
		in      string
		r, g, b uint8
	}{
		{"ff8001", 0xFF, 0x80, 0x01},
		{"#00FF00", 0, 0xFF, 0},
		{"0x0000ff", 0, 0, 0xFF},
	}
	for _, tc := range testCases {
		r, g, b, err := parseColor(tc.in)
		if err != nil || r != tc.r || g != tc.g || b != tc.b {
			t.Errorf("parseColor(%q) = %d %d %d %v", tc.in, r, g, b, err)
		}
	}
}
