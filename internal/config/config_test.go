package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Audio.SampleRate != 48000 || c.Audio.Backend != "ebiten" {
		t.Fatalf("audio defaults = %+v", c.Audio)
	}
	if c.PSG.DefaultVolume != 50 || c.PSG.Tempo != 120 || c.PSG.Octave != 4 || c.PSG.Length != 4 {
		t.Fatalf("psg defaults = %+v", c.PSG)
	}
	if c.Engine.UpdateHz != 60 {
		t.Fatalf("update hz = %d, want 60", c.Engine.UpdateHz)
	}
	if c.BufferSize() != 50*time.Millisecond {
		t.Fatalf("buffer size = %v", c.BufferSize())
	}
}

func TestParseOverridesAndClamps(t *testing.T) {
	c, err := Parse([]byte(`
[Audio]
Backend = null

[PSG]
DefaultVolume = 250
Octave = -3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Audio.Backend != "null" {
		t.Fatalf("backend = %q, want null", c.Audio.Backend)
	}
	if c.Audio.SampleRate != 48000 {
		t.Fatalf("untouched key lost its default: %d", c.Audio.SampleRate)
	}
	if c.PSG.DefaultVolume != 100 || c.PSG.Octave != 0 {
		t.Fatalf("clamped psg = %+v", c.PSG)
	}
}

func TestEffectsSection(t *testing.T) {
	c := Default()
	if c.Effects.EchoWet != 0 || c.Effects.RoomWet != 0 || c.Effects.Compressor {
		t.Fatalf("effects enabled by default: %+v", c.Effects)
	}
	c, err := Parse([]byte("[Effects]\nEchoWet = 3\nEchoMs = -5\nCompressor = true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Effects.EchoWet != 1 || c.Effects.EchoMs != 1 || !c.Effects.Compressor {
		t.Fatalf("effects = %+v", c.Effects)
	}
	if c.Effects.RoomSize != 0.5 {
		t.Fatalf("room size default lost: %v", c.Effects.RoomSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Audio.Backend != "ebiten" {
		t.Fatalf("backend = %q", c.Audio.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psg.ini")
	if err := os.WriteFile(path, []byte("[Files]\nRoot = sounds\n[Engine]\nUpdateHz = 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Files.Root != "sounds" {
		t.Fatalf("root = %q", c.Files.Root)
	}
	if got := c.UpdateInterval(); got != time.Second/30 {
		t.Fatalf("update interval = %v", got)
	}
}
