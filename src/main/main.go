package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"manga-screen-ocr/src/clipboard"
	"manga-screen-ocr/src/config"
	"manga-screen-ocr/src/engine"
	"manga-screen-ocr/src/eventloop"
	"manga-screen-ocr/src/hotkey"
	"manga-screen-ocr/src/input"
	"manga-screen-ocr/src/logutil"
	"manga-screen-ocr/src/macro"
	"manga-screen-ocr/src/overlay"
	"manga-screen-ocr/src/preprocess"
	"manga-screen-ocr/src/screenshot"
	"manga-screen-ocr/src/tray"
	"manga-screen-ocr/src/worker"
)

// headlessSurface stands in until a window toolkit surface is attached. The
// capture path works without one: geometry lives in the overlay state
// machine and grabbing reads the screen directly.
type headlessSurface struct{}

func (headlessSurface) Hide() {}
func (headlessSurface) Show() {}
func (headlessSurface) ApplyGeometry(r screenshot.Region) {
	log.Printf("Overlay surface: geometry %dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics.
	enableDPIAwareness()

	// The tray loop needs the main OS thread.
	runtime.LockOSThread()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logutil.Setup(cfg.EnableFileLogging)

	if err := clipboard.Init(); err != nil {
		log.Fatalf("Failed to initialize clipboard: %v", err)
	}

	variant := engine.ParseVariant(cfg.Engine)
	manager := engine.NewManager(engine.VisionConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Providers: cfg.Providers,
	})
	manager.Select(variant)
	if variant == engine.VariantVisionLM && cfg.APIKey == "" {
		tray.ShowMessage("Manga Screen OCR",
			"OPENROUTER_API_KEY is required for the Vision LM engine. Set it in your .env file or switch to Tesseract.")
		os.Exit(1)
	}
	manager.LoadActiveAsync(func(ok bool, err error) {
		if !ok {
			log.Printf("Main: engine preload failed: %v", err)
			return
		}
		log.Printf("Main: engine %s ready (accelerator: %d)", manager.Active(), manager.Accelerated())
	})

	log.Printf("Manga Screen OCR initialized")
	log.Printf("Engine: %s", manager.Active())
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Recognition deadline: %ds", cfg.OCRDeadlineSec)
	if cfg.APIKey != "" {
		log.Printf("API key: %s", logutil.RedactKey(cfg.APIKey))
	}

	ov := overlay.New(headlessSurface{})
	if cfg.CaptureGeometry != "" {
		if err := ov.RestoreGeometry(cfg.CaptureGeometry); err != nil {
			log.Printf("Main: %v", err)
		}
	}

	router := input.Default()
	if !router.Start() {
		log.Printf("Main: global input hooks unavailable")
	}

	mac := macro.NewController(router, macro.NewRobotgoInjector())
	mac.SetKillKey(cfg.KillKey)
	if data, err := cfg.LoadMacroLog(); err == nil && data != nil {
		if events, err := macro.UnmarshalLog(data); err == nil {
			mac.LoadEvents(events)
			log.Printf("Main: restored macro log with %d events", len(events))
		} else {
			log.Printf("Main: %v", err)
		}
	}
	mac.SetCallbacks(macro.Callbacks{
		OnRecordingComplete: func(events []macro.Event) {
			data, err := macro.MarshalLog(events)
			if err != nil {
				log.Printf("Main: failed to serialize macro log: %v", err)
				return
			}
			if err := cfg.SaveMacroLog(data); err != nil {
				log.Printf("Main: failed to save macro log: %v", err)
			}
		},
	})

	pool := worker.New(0, func(img image.Image) (string, error) {
		return manager.Infer(img)
	})

	loop := eventloop.New(cfg, ov, pool, eventloop.Sinks{
		WriteClipboard: clipboard.Write,
		Notify:         func(message string) { log.Printf("Main: %s", message) },
		SetTooltip:     tray.SetTooltip,
		PlayMacro:      func() bool { return mac.Play(nil) },
	})
	loop.SetDefaultTooltip(fmt.Sprintf("Manga Screen OCR - Press %s to capture", cfg.Hotkey))

	ov.SetCallbacks(overlay.Callbacks{
		OnGeometryChanged: func(screenshot.Region) {
			if err := cfg.SaveGeometry(ov.SerializeGeometry()); err != nil {
				log.Printf("Main: %v", err)
			}
		},
		OnCapture: loop.SubmitImage,
	})

	if !hotkey.Listen(router, cfg.Hotkey, loop.RequestCapture) {
		log.Printf("Main: global hotkey unavailable, use the tray menu to capture")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
		tray.Quit()
	}()

	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Printf("Main: event loop stopped: %v", err)
		}
	}()

	tray.Run(tray.Handlers{
		OnCapture:     loop.RequestCapture,
		OnToggleArmed: ov.ToggleArmed,
		OnSelectEngine: func(v engine.Variant) {
			manager.Select(v)
			manager.LoadActiveAsync(func(ok bool, err error) {
				if !ok {
					log.Printf("Main: engine %s load failed: %v", v, err)
				}
			})
			if err := cfg.SaveEngine(string(v)); err != nil {
				log.Printf("Main: %v", err)
			}
		},
		OnSelectMode: func(m preprocess.Mode) {
			loop.SetPreprocessMode(m)
			if err := cfg.SavePreprocessMode(string(m)); err != nil {
				log.Printf("Main: %v", err)
			}
		},
		OnRecordMacro: func() {
			if !mac.StartRecording() {
				log.Printf("Main: recording not started")
			}
		},
		OnPlayMacro: func() {
			if !mac.Play(nil) {
				log.Printf("Main: playback not started")
			}
		},
		OnQuit: func() {
			if err := cfg.SaveGeometry(ov.SerializeGeometry()); err != nil {
				log.Printf("Main: %v", err)
			}
			cancel()
		},
	}, tray.Options{
		Engine:         variant,
		PreprocessMode: preprocess.ParseMode(cfg.PreprocessMode),
		MacroAvailable: mac.IsAvailable(),
	})

	manager.UnloadAll()
}
