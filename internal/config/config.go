// Package config loads engine settings from an INI file layered over the
// built-in defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

//go:embed default.ini
var defaultConfig []byte

type Config struct {
	Audio struct {
		SampleRate int    `ini:"SampleRate"`
		Backend    string `ini:"Backend"`
		BufferMs   int    `ini:"BufferMs"`
	} `ini:"Audio"`
	Engine struct {
		MaxHandles int `ini:"MaxHandles"`
		UpdateHz   int `ini:"UpdateHz"`
	} `ini:"Engine"`
	Files struct {
		Root      string `ini:"Root"`
		SoundFont string `ini:"SoundFont"`
	} `ini:"Files"`
	PSG struct {
		DefaultVolume   int   `ini:"DefaultVolume"`
		DefaultWaveform int   `ini:"DefaultWaveform"`
		Seed            int64 `ini:"Seed"`
		Tempo           int   `ini:"Tempo"`
		Octave          int   `ini:"Octave"`
		Length          int   `ini:"Length"`
	} `ini:"PSG"`
	Effects struct {
		EchoWet             float64 `ini:"EchoWet"`
		EchoMs              float64 `ini:"EchoMs"`
		EchoFeedback        float64 `ini:"EchoFeedback"`
		RoomWet             float64 `ini:"RoomWet"`
		RoomSize            float64 `ini:"RoomSize"`
		RoomDecay           float64 `ini:"RoomDecay"`
		Compressor          bool    `ini:"Compressor"`
		CompressorThreshold float64 `ini:"CompressorThreshold"`
		CompressorRatio     float64 `ini:"CompressorRatio"`
	} `ini:"Effects"`
}

var loadOptions = ini.LoadOptions{
	SkipUnrecognizableLines: true,
	IgnoreInlineComment:     false,
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := parse(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	c, err := parse(defaultConfig, path)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse reads INI data over the defaults.
func Parse(data []byte) (*Config, error) {
	return parse(defaultConfig, data)
}

func parse(sources ...interface{}) (*Config, error) {
	f, err := ini.LoadSources(loadOptions, sources[0], sources[1:]...)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := f.MapTo(&c); err != nil {
		return nil, err
	}
	c.normalize()
	return &c, nil
}

func (c *Config) normalize() {
	if c.Audio.SampleRate < 0 {
		c.Audio.SampleRate = 0
	}
	if c.Audio.BufferMs < 0 {
		c.Audio.BufferMs = 0
	}
	if c.Engine.MaxHandles < 0 {
		c.Engine.MaxHandles = 0
	}
	if c.Engine.UpdateHz <= 0 {
		c.Engine.UpdateHz = 60
	}
	c.PSG.DefaultVolume = clamp(c.PSG.DefaultVolume, 0, 100)
	c.PSG.DefaultWaveform = clamp(c.PSG.DefaultWaveform, 1, 10)
	c.PSG.Tempo = clamp(c.PSG.Tempo, 32, 255)
	c.PSG.Octave = clamp(c.PSG.Octave, 0, 6)
	c.PSG.Length = clamp(c.PSG.Length, 1, 64)
	fx := &c.Effects
	fx.EchoWet = max(0, min(fx.EchoWet, 1))
	fx.RoomWet = max(0, min(fx.RoomWet, 1))
	fx.EchoMs = max(1, fx.EchoMs)
}

func (c *Config) BufferSize() time.Duration {
	return time.Duration(c.Audio.BufferMs) * time.Millisecond
}

// UpdateInterval is the period between Update calls.
func (c *Config) UpdateInterval() time.Duration {
	return time.Second / time.Duration(c.Engine.UpdateHz)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
