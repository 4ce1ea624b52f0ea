package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("croppad"),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

type serveCmd struct {
	Dir          string `arg:"" optional:"" help:"Directory of images to preload into the editor"`
	CanvasWidth  int    `help:"Canvas width in pixels" default:"1280"`
	CanvasHeight int    `help:"Canvas height in pixels" default:"720"`
	Open         bool   `help:"Open the browser automatically when the server starts" default:"true"`
	Verbose      bool   `help:"Enable verbose logging" default:"false"`
}

func (cmd *serveCmd) Run() error {
	level := zerolog.InfoLevel
	if cmd.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = log.Logger.WithContext(ctx)

	cfg := DefaultEngineConfig()
	collection := NewCollection()
	session := NewSession(cfg, cmd.CanvasWidth, cmd.CanvasHeight)
	canvas := NewCanvas(cmd.CanvasWidth, cmd.CanvasHeight, cfg)
	panel := &PanelState{}
	controller := NewController(session, canvas, panel.Hooks())

	if cmd.Dir != "" {
		if err := preloadImages(ctx, cmd.Dir, collection); err != nil {
			return err
		}
		if rec := collection.Active(); rec != nil {
			if err := controller.SetImage(rec); err != nil {
				return err
			}
		}
	}

	app := NewWebApp(Config{
		Collection:    collection,
		Controller:    controller,
		Extractor:     NewExtractor(),
		Panel:         panel,
		FrameInterval: cfg.FrameInterval,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type cliArgs struct {
	Serve serveCmd `cmd:"" default:"withargs"`
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff"}

// preloadImages reads every image file under rootPath into the collection.
func preloadImages(ctx context.Context, rootPath string, collection *Collection) error {
	var files []File

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		for _, known := range imageExtensions {
			if ext == known {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				relPath, err := filepath.Rel(rootPath, path)
				if err != nil {
					return fmt.Errorf("failed to get relative path: %w", err)
				}
				files = append(files, File{Name: relPath, Data: data})
				break
			}
		}
		return nil
	}); err != nil {
		return err
	}

	added, err := collection.ReadImages(ctx, files)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Int("count", len(added)).Str("dir", rootPath).Msg("preloaded images")
	return nil
}

func openBrowser(addr string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", addr).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", addr).Start()
	default:
		return exec.Command("xdg-open", addr).Start()
	}
}
