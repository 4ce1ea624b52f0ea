package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

// PanelState mirrors the visibility of the frontend's modal crop panel and
// carries the reset notification back to it.
type PanelState struct {
	visible      atomic.Bool
	resetPending atomic.Bool
}

func (p *PanelState) Visible() bool     { return p.visible.Load() }
func (p *PanelState) SetVisible(v bool) { p.visible.Store(v) }
func (p *PanelState) RequestReset()     { p.resetPending.Store(true) }
func (p *PanelState) TakeReset() bool   { return p.resetPending.Swap(false) }

// Hooks adapts the panel state to the controller's callback contract.
func (p *PanelState) Hooks() PanelHooks {
	return PanelHooks{
		IsPanelVisible:       p.Visible,
		ResetCropPanelInputs: p.RequestReset,
	}
}

type Config struct {
	Collection       *Collection
	Controller       *Controller
	Extractor        *Extractor
	Panel            *PanelState
	FrameInterval    time.Duration
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(c.Context()).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Frame loop: coalesced redraw requests are flushed at a fixed rate.
	go func() {
		ticker := time.NewTicker(a.config.FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.shutdownCh:
				return
			case <-ticker.C:
				a.config.Controller.Scheduler().Flush()
			}
		}
	}()

	collection := a.config.Collection
	controller := a.config.Controller
	extractor := a.config.Extractor
	panel := a.config.Panel

	webapp.Get("/api/images", func(c *fiber.Ctx) error {
		active := ""
		if rec := collection.Active(); rec != nil {
			active = rec.ID
		}
		return c.JSON(fiber.Map{"images": collection.List(), "active": active})
	})

	webapp.Post("/api/images", func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "expected multipart form upload")
		}
		var files []File
		for _, fh := range form.File["images"] {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
			}
			files = append(files, File{Name: fh.Filename, Data: data})
		}
		added, err := collection.ReadImages(c.Context(), files)
		if err != nil {
			return fmt.Errorf("failed to ingest uploads: %w", err)
		}
		if controller.State().ActiveImage == "" && len(added) > 0 {
			if _, err := collection.SetActive(added[0].ID); err == nil {
				if err := controller.SetImage(added[0]); err != nil {
					return err
				}
			}
		}
		return c.JSON(fiber.Map{"added": added})
	})

	webapp.Post("/api/images/:id/activate", func(c *fiber.Ctx) error {
		rec, err := collection.SetActive(c.Params("id"))
		if err != nil {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		if err := controller.SetImage(rec); err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/pointer", func(c *fiber.Ctx) error {
		var request struct {
			Type string `json:"type"`
			PointerEvent
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		switch request.Type {
		case "down":
			controller.PointerDown(request.PointerEvent)
		case "move":
			controller.PointerMove(request.PointerEvent)
		case "up":
			controller.PointerUp()
		case "dblclick":
			controller.DoubleClick()
		default:
			return fiber.NewError(http.StatusBadRequest, "unknown pointer event type")
		}
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/zoom", func(c *fiber.Ctx) error {
		var request struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			Factor float64 `json:"factor"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		controller.ZoomAt(request.X, request.Y, request.Factor)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/pan", func(c *fiber.Ctx) error {
		var request struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		controller.Pan(request.DX, request.DY)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/rotation", func(c *fiber.Ctx) error {
		var request struct {
			Angle float64 `json:"angle"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		controller.SetRotation(request.Angle)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/flip", func(c *fiber.Ctx) error {
		var request struct {
			Axis string `json:"axis"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		switch request.Axis {
		case "h":
			controller.FlipHorizontal()
		case "v":
			controller.FlipVertical()
		default:
			return fiber.NewError(http.StatusBadRequest, "axis must be h or v")
		}
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/cut-mode", func(c *fiber.Ctx) error {
		var request struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		controller.SetCutMode(request.Enabled)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/panel", func(c *fiber.Ctx) error {
		var request struct {
			Visible bool `json:"visible"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		panel.SetVisible(request.Visible)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Get("/api/state", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"state":       controller.State(),
			"panel_reset": panel.TakeReset(),
		})
	})

	webapp.Get("/api/frame", func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := controller.FramePNG(&buf); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(buf.Bytes())
	})

	webapp.Post("/api/crop", func(c *fiber.Ctx) error {
		var request struct {
			Mode string `json:"mode"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		snap := controller.Snapshot()
		var buf bytes.Buffer
		width, height, err := extractor.Extract(c.Context(), snap, &buf)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidRegion):
				return fiber.NewError(http.StatusBadRequest, err.Error())
			case errors.Is(err, ErrImageLoad):
				return fiber.NewError(http.StatusConflict, err.Error())
			default:
				return err
			}
		}

		name := derivedName(snap.Image.Name, snap.Image.Type)
		switch request.Mode {
		case "cut":
			added, err := collection.ReadImages(c.Context(), []File{{Name: name, Data: buf.Bytes()}})
			if err != nil {
				return fmt.Errorf("failed to ingest cut image: %w", err)
			}
			if len(added) == 0 {
				return fmt.Errorf("cut image was not ingested: %w", ErrEncoding)
			}
			if _, err := collection.SetActive(added[0].ID); err != nil {
				return err
			}
			if err := controller.SetImage(added[0]); err != nil {
				return err
			}
			return c.JSON(added[0])
		default:
			rec, err := newImageRecord(name, buf.Bytes())
			if err != nil {
				return fmt.Errorf("failed to register crop: %w", err)
			}
			if err := collection.AddFolderImage(snap.Image.ID, rec); err != nil {
				return err
			}
			log.Ctx(c.Context()).Info().
				Str("name", rec.Name).
				Int("width", width).
				Int("height", height).
				Msg("added folder image")
			return c.JSON(rec)
		}
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
