// Command rhidemo runs the engine headless: it loads a configuration,
// acquires every image in a directory through the texture library, orbits
// a camera for a number of ticks and prints the engine statistics.
//
// Build with -tags native to make the WebGPU HAL driver selectable.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
	_ "github.com/gogpu/rhi/backend/null"
	"github.com/gogpu/rhi/linear"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		dir        = flag.String("dir", ".", "texture directory")
		driver     = flag.String("backend", "", "driver name (default: best available)")
		ticks      = flag.Int("ticks", 60, "number of engine ticks")
		width      = flag.Int("width", 800, "viewport width")
		height     = flag.Int("height", 600, "viewport height")
		verbose    = flag.Bool("v", false, "log engine activity to stderr")
	)
	flag.Parse()

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := rhi.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = rhi.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	cfg.Textures.Root = *dir
	cfg.Textures.SearchPaths = []string{"."}
	if *driver != "" {
		cfg.Engine.Backend = *driver
	}

	if err := run(cfg, *dir, *ticks, *width, *height); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *rhi.Config, dir string, ticks, width, height int) error {
	e, err := rhi.NewEngine(rhi.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	e.Resize(width, height)
	cam := e.NewCamera()
	cam.Transform().SetPosition(linear.V3{0, 0, 5})

	ids, err := imageFiles(dir)
	if err != nil {
		return err
	}
	lib := e.Textures()
	if err := lib.Preload(ids...); err != nil {
		log.Printf("preload: %v", err)
	}

	var refs []*rhi.TextureRef
	for _, id := range ids {
		ref, err := lib.Acquire(id)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}

	const step = 0.05
	var frame rhi.TickStats
	for range ticks {
		cam.Orbit(step, step/4)
		_ = cam.Matrix()
		frame = e.Think()
		if frame.DriverError != nil {
			log.Printf("tick %d: %v", frame.Frame, frame.DriverError)
		}
	}

	for _, ref := range refs {
		_ = ref.Close()
	}
	e.Think()

	printStats(e, len(ids), len(refs))
	return nil
}

// imageFiles lists the files in dir whose extension some decoder is
// likely to accept.
func imageFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(os.DirFS(dir), ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("rhidemo: texture directory %s: %w", dir, err)
		}
		return nil, err
	}
	var ids []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(ent.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
			ids = append(ids, ent.Name())
		}
	}
	return ids, nil
}

func printStats(e *rhi.Engine, found, loaded int) {
	s := e.Stats()
	fmt.Printf("driver:    %s (available: %s)\n", e.Driver().Name(), strings.Join(backend.Available(), ", "))
	fmt.Printf("frames:    %d\n", s.Frames)
	fmt.Printf("resources: %d (pending init %d, update %d, release %d)\n",
		s.Resources, s.PendingInit, s.PendingUpdate, s.PendingRelease)
	fmt.Printf("jobs:      %d queued, %d finished\n", s.Jobs, s.JobsFinished)
	fmt.Printf("textures:  %d/%d loaded, %d cached, %d idle, hit rate %.2f\n",
		loaded, found, s.Textures.Len, s.Textures.Idle, s.Textures.HitRate)
}
