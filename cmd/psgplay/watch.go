package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	psgengine "github.com/cbegin/psgengine-go"
	"github.com/fsnotify/fsnotify"
)

// debounce absorbs the burst of events editors emit for one save.
const debounce = 150 * time.Millisecond

// watchFile plays path in background mode and replays it each time it is
// written. Editors that replace the file are handled by watching its
// directory.
func watchFile(ctx context.Context, engine *psgengine.Engine, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	replay := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			log.Printf("watch: %v", err)
			return
		}
		engine.StopMML()
		voices := strings.Split(string(data), voiceSeparator)
		voices[0] = "MB" + voices[0]
		if err := engine.PlayMMLVoices(ctx, voices...); err != nil {
			log.Printf("watch: %v", err)
			return
		}
		log.Printf("playing %s", path)
	}
	replay()

	var pending <-chan time.Time
	tick := time.NewTicker(time.Second / 60)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		case <-pending:
			pending = nil
			replay()
		case <-tick.C:
			engine.Update()
		}
	}
}
