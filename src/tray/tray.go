package tray

import (
	"log"

	"github.com/getlantern/systray"

	"manga-screen-ocr/src/engine"
	"manga-screen-ocr/src/preprocess"
)

const appTitle = "Manga Screen OCR"

// Handlers are invoked from the systray's menu goroutine. Hosts must post
// work into their own loop instead of blocking here.
type Handlers struct {
	OnCapture      func()
	OnToggleArmed  func() bool
	OnSelectEngine func(engine.Variant)
	OnSelectMode   func(preprocess.Mode)
	OnRecordMacro  func()
	OnPlayMacro    func()
	OnQuit         func()
}

// Options seed the initial menu state.
type Options struct {
	Engine         engine.Variant
	PreprocessMode preprocess.Mode
	MacroAvailable bool
}

// Run blocks on the systray loop until Quit. Call from the main goroutine.
func Run(h Handlers, opts Options) {
	systray.Run(func() { onReady(h, opts) }, onExit)
}

// Quit asks the systray loop to exit.
func Quit() {
	systray.Quit()
}

// SetTooltip updates the tray tooltip (used for busy/result status).
func SetTooltip(text string) {
	systray.SetTooltip(text)
}

func onReady(h Handlers, opts Options) {
	if icon := getIcon(); len(icon) > 0 {
		systray.SetIcon(icon)
	}
	systray.SetTitle(appTitle)
	systray.SetTooltip(appTitle)

	mCapture := systray.AddMenuItem("Capture Now", "Capture the overlay region and recognize text")
	mArmed := systray.AddMenuItemCheckbox("Armed", "Honor capture triggers", true)
	systray.AddSeparator()

	mEngine := systray.AddMenuItem("Engine", "Recognition engine")
	variants := engine.Variants()
	engineItems := make(map[engine.Variant]*systray.MenuItem, len(variants))
	for _, variant := range variants {
		info := engine.VariantInfo(variant)
		engineItems[variant] = mEngine.AddSubMenuItemCheckbox(info.Name, info.Description, variant == opts.Engine)
	}
	for variant, item := range engineItems {
		go func() {
			for range item.ClickedCh {
				for v, it := range engineItems {
					if v == variant {
						it.Check()
					} else {
						it.Uncheck()
					}
				}
				if h.OnSelectEngine != nil {
					h.OnSelectEngine(variant)
				}
			}
		}()
	}

	mMode := systray.AddMenuItem("Preprocessing", "Image preprocessing mode")
	modes := preprocess.AvailableModes()
	modeItems := make(map[preprocess.Mode]*systray.MenuItem, len(modes))
	for _, mode := range modes {
		modeItems[mode] = mMode.AddSubMenuItemCheckbox(string(mode), preprocess.ModeDescription(mode), mode == opts.PreprocessMode)
	}
	for mode, item := range modeItems {
		go func() {
			for range item.ClickedCh {
				for mm, it := range modeItems {
					if mm == mode {
						it.Check()
					} else {
						it.Uncheck()
					}
				}
				if h.OnSelectMode != nil {
					h.OnSelectMode(mode)
				}
			}
		}()
	}

	var mRecord, mPlay *systray.MenuItem
	if opts.MacroAvailable {
		systray.AddSeparator()
		mRecord = systray.AddMenuItem("Record Macro", "Record input events until the kill key")
		mPlay = systray.AddMenuItem("Play Macro", "Replay the recorded input events")
	}

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				if h.OnCapture != nil {
					h.OnCapture()
				}
			case <-mArmed.ClickedCh:
				if h.OnToggleArmed != nil {
					if h.OnToggleArmed() {
						mArmed.Check()
					} else {
						mArmed.Uncheck()
					}
				}
			case <-clickedOrNil(mRecord):
				if h.OnRecordMacro != nil {
					h.OnRecordMacro()
				}
			case <-clickedOrNil(mPlay):
				if h.OnPlayMacro != nil {
					h.OnPlayMacro()
				}
			case <-mQuit.ClickedCh:
				log.Printf("Tray: quit requested")
				if h.OnQuit != nil {
					h.OnQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

// clickedOrNil lets optional menu items sit in a select; a nil channel never
// fires.
func clickedOrNil(item *systray.MenuItem) chan struct{} {
	if item == nil {
		return nil
	}
	return item.ClickedCh
}

func onExit() {
}
