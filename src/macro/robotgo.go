package macro

import (
	"log"

	"github.com/go-vgo/robotgo"
)

// robotgoInjector synthesizes input through robotgo. Injection errors are
// logged and swallowed: playback timing matters more than any single event.
type robotgoInjector struct{}

// NewRobotgoInjector returns the production input injector.
func NewRobotgoInjector() Injector {
	return robotgoInjector{}
}

func (robotgoInjector) KeyDown(key string) {
	if err := robotgo.KeyToggle(key, "down"); err != nil {
		log.Printf("Macro: key down %q failed: %v", key, err)
	}
}

func (robotgoInjector) KeyUp(key string) {
	if err := robotgo.KeyToggle(key, "up"); err != nil {
		log.Printf("Macro: key up %q failed: %v", key, err)
	}
}

func (robotgoInjector) PointerDown(button string) {
	if err := robotgo.Toggle(button, "down"); err != nil {
		log.Printf("Macro: pointer down %q failed: %v", button, err)
	}
}

func (robotgoInjector) PointerUp(button string) {
	if err := robotgo.Toggle(button, "up"); err != nil {
		log.Printf("Macro: pointer up %q failed: %v", button, err)
	}
}

func (robotgoInjector) PointerClick(button string) {
	robotgo.Click(button, false)
}

func (robotgoInjector) PointerMove(x, y int) {
	robotgo.Move(x, y)
}

func (robotgoInjector) PointerScroll(delta int) {
	robotgo.Scroll(0, delta)
}
