package tray

import (
	_ "embed"
)

// Embedded SVG icon data
//
//go:embed icon.svg
var IconSVG []byte

func getIcon() []byte {
	return IconSVG
}
