package hotkey

import (
	"log"

	gohook "github.com/robotn/gohook"

	"manga-screen-ocr/src/input"
)

// Source is the slice of the input router the listener needs.
type Source interface {
	Subscribe(buf int) (<-chan gohook.Event, func())
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// Listen watches the hook stream for a combo like "Ctrl+Alt+Q" and invokes
// callback each time every key of the combo is held at once. The callback
// runs on the listener goroutine; it should only post into a channel.
// Returns false when the combo contains no mappable keys.
func Listen(src Source, combo string, callback func()) bool {
	if combo == "" || callback == nil {
		return false
	}

	var states []keyState
	for _, name := range input.ParseCombo(combo) {
		rawcodes := input.RawcodesFor(name)
		if len(rawcodes) == 0 {
			log.Printf("Hotkey: cannot map key %q, skipping", name)
			continue
		}
		states = append(states, keyState{name: name, rawcodes: rawcodes})
	}
	if len(states) == 0 {
		log.Printf("Hotkey: no valid keys in combo %q", combo)
		return false
	}

	events, _ := src.Subscribe(64)
	log.Printf("Hotkey: listening for %s", combo)

	go func() {
		for ev := range events {
			switch ev.Kind {
			case gohook.KeyDown, gohook.KeyHold:
				if mark(states, ev.Rawcode, true) && allPressed(states) {
					log.Printf("Hotkey: %s activated", combo)
					reset(states)
					callback()
				}
			case gohook.KeyUp:
				mark(states, ev.Rawcode, false)
			}
		}
	}()
	return true
}

func mark(states []keyState, rawcode uint16, pressed bool) bool {
	for i := range states {
		for _, code := range states[i].rawcodes {
			if code == rawcode {
				states[i].pressed = pressed
				return true
			}
		}
	}
	return false
}

func allPressed(states []keyState) bool {
	for i := range states {
		if !states[i].pressed {
			return false
		}
	}
	return true
}

func reset(states []keyState) {
	for i := range states {
		states[i].pressed = false
	}
}
