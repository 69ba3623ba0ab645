package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	psgengine "github.com/cbegin/psgengine-go"
	"github.com/cbegin/psgengine-go/internal/config"
	"github.com/cbegin/psgengine-go/internal/luabind"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/term"
)

const defaultMML = "T150 L8 O4 CDEFGAB>C"

// voiceSeparator splits a file or -mml string into parallel voices.
const voiceSeparator = "|"

func main() {
	var (
		configPath = flag.String("config", "", "path to an INI settings file")
		backend    = flag.String("backend", "", "audio backend: ebiten|oto|null (default from config)")
		sampleRate = flag.Int("sample-rate", 0, "output sample rate (default from config)")
		mmlPath    = flag.String("file", "", "path to an MML file")
		mmlInline  = flag.String("mml", "", "inline MML string; separate voices with |")
		soundArg   = flag.String("sound", "", "play a tone: freq,ticks")
		playPath   = flag.String("play", "", "play an audio file (wav, flac, ogg, mp3, mid)")
		wavOut     = flag.String("wav", "", "render the MML to this WAV file instead of playing it")
		watch      = flag.Bool("watch", false, "replay -file whenever it changes")
		luaPath    = flag.String("lua", "", "run a Lua script with the audio table installed")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sampleRate > 0 {
		cfg.Audio.SampleRate = *sampleRate
	}

	mmlText, err := resolveMMLInput(*mmlPath, *mmlInline)
	if err != nil {
		log.Fatal(err)
	}
	voices := strings.Split(mmlText, voiceSeparator)

	if *wavOut != "" {
		samples, err := psgengine.RenderMMLVoices(cfg.Audio.SampleRate, voices...)
		if err != nil {
			log.Fatal(err)
		}
		wav := psgengine.EncodeWAVFloat32LE(samples, cfg.Audio.SampleRate, 2)
		if err := os.WriteFile(*wavOut, wav, 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s (%.2fs)\n", *wavOut, float64(len(samples)/2)/float64(cfg.Audio.SampleRate))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []psgengine.Option{psgengine.WithConfig(cfg)}
	if *backend != "" {
		opts = append(opts, psgengine.WithBackend(*backend))
	}
	engine := psgengine.New(opts...)
	if err := engine.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer engine.Shutdown()

	switch {
	case *luaPath != "":
		err = runLua(ctx, engine, *luaPath)
	case *playPath != "":
		err = playFile(ctx, engine, *playPath)
	case *soundArg != "":
		err = playSound(ctx, engine, *soundArg)
	case *watch:
		if *mmlPath == "" {
			log.Fatal("-watch needs -file")
		}
		err = watchFile(ctx, engine, *mmlPath)
	default:
		err = playMML(ctx, engine, voices)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func resolveMMLInput(path string, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultMML, nil
}

func playMML(ctx context.Context, engine *psgengine.Engine, voices []string) error {
	if err := engine.PlayMMLVoices(ctx, voices...); err != nil {
		return err
	}
	return drain(ctx, engine, func() (float64, bool) {
		left := engine.MMLRemaining()
		return left, left > 0
	})
}

func playSound(ctx context.Context, engine *psgengine.Engine, arg string) error {
	freqText, ticksText, ok := strings.Cut(arg, ",")
	if !ok {
		return fmt.Errorf("invalid -sound %q (expected freq,ticks)", arg)
	}
	freq, err := strconv.ParseFloat(strings.TrimSpace(freqText), 64)
	if err != nil {
		return fmt.Errorf("invalid -sound frequency: %w", err)
	}
	ticks, err := strconv.ParseFloat(strings.TrimSpace(ticksText), 64)
	if err != nil {
		return fmt.Errorf("invalid -sound duration: %w", err)
	}
	if err := engine.Sound(ctx, freq, ticks); err != nil {
		return err
	}
	return drain(ctx, engine, func() (float64, bool) {
		left := engine.MMLRemaining()
		return left, left > 0
	})
}

func playFile(ctx context.Context, engine *psgengine.Engine, path string) error {
	h := engine.OpenStream(path)
	if h == psgengine.InvalidHandle {
		return engine.LastError()
	}
	defer engine.Close(h)
	engine.Play(h)
	total := engine.Length(h)
	return drain(ctx, engine, func() (float64, bool) {
		return total - engine.Position(h), engine.IsPlaying(h)
	})
}

func runLua(ctx context.Context, engine *psgengine.Engine, path string) error {
	l := lua.NewState()
	defer l.Close()
	l.SetContext(ctx)
	luabind.Register(l, engine)
	return l.DoFile(path)
}

// drain pumps the engine until busy reports false, showing the time left
// when stdout is a terminal.
func drain(ctx context.Context, engine *psgengine.Engine, busy func() (float64, bool)) error {
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	for {
		engine.Update()
		left, ok := busy()
		if !ok {
			if tty {
				fmt.Print("\r\033[K")
			}
			fmt.Println("playback completed")
			return nil
		}
		if tty {
			fmt.Printf("\r%6.2fs left", left)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
