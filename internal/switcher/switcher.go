// Package switcher implements the Animation Switcher (adjunct to C2/C3): it
// watches a single control file for a new animation filename and, on
// change, loads and installs it into the Render Engine.
package switcher

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/showrunner/controller/internal/anim"
)

// Engine is the render.Engine surface the switcher drives.
type Engine interface {
	InstallAnimation(a *anim.Animation)
	CurrentAnimation() *anim.Animation
}

// Loader loads an animation by its control-file name.
type Loader interface {
	Load(name string) (*anim.Animation, error)
}

// Switcher watches controlFile and hot-swaps the installed animation,
// grounded in the teacher's cmd/lepton/watch_linux.go fsnotify.Watcher use
// (there applied to the executable's own mtime; here to a control file).
type Switcher struct {
	controlFile string
	engine      Engine
	loader      Loader
	current     string
	debounce    time.Duration
}

// New constructs a Switcher. If controlFile does not exist, it is created
// containing initialAnimation so a fresh checkout starts up with a known
// animation selected.
func New(controlFile string, engine Engine, loader Loader, initialAnimation string) (*Switcher, error) {
	if _, err := os.Stat(controlFile); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(controlFile, []byte(initialAnimation), 0644); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return &Switcher{
		controlFile: controlFile,
		engine:      engine,
		loader:      loader,
		debounce:    200 * time.Millisecond,
	}, nil
}

// LoadInitial loads and installs whatever name is currently in the control
// file. Call this once before Run so the engine has an animation installed
// before the first tick.
func (s *Switcher) LoadInitial() error {
	name, err := s.readName()
	if err != nil {
		return err
	}
	if name == "" {
		return errors.New("switcher: control file is empty")
	}
	a, err := s.loader.Load(name)
	if err != nil {
		return err
	}
	s.engine.InstallAnimation(a)
	s.current = name
	return nil
}

// Run watches the control file until ctx is canceled. On any change event
// (including a debounced create) it re-reads the name; if it differs from
// the currently installed animation and loads successfully, it installs
// the new Animation. On load failure, the current animation is kept and
// the error is logged.
func (s *Switcher) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.controlFile); err != nil {
		return err
	}

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("switcher: watch error: %v", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, s.reload)
		}
	}
}

func (s *Switcher) reload() {
	name, err := s.readName()
	if err != nil {
		log.Printf("switcher: reading control file: %v", err)
		return
	}
	if name == "" || name == s.current {
		return
	}
	a, err := s.loader.Load(name)
	if err != nil {
		log.Printf("switcher: keeping %q, failed to load %q: %v", s.current, name, err)
		return
	}
	prev := s.engine.CurrentAnimation()
	s.engine.InstallAnimation(a)
	s.current = name
	if prev != nil {
		prev.Close()
	}
}

func (s *Switcher) readName() (string, error) {
	b, err := os.ReadFile(s.controlFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
