package input

import "strings"

// keyRawcodes maps normalized key names to Windows virtual-key rawcodes.
// Modifiers list both left and right variants so either satisfies a combo.
var keyRawcodes = map[string][]uint16{
	"ctrl":  {162, 163},
	"alt":   {164, 165},
	"shift": {160, 161},
	"cmd":   {91, 92},

	"a": {65}, "b": {66}, "c": {67}, "d": {68}, "e": {69}, "f": {70},
	"g": {71}, "h": {72}, "i": {73}, "j": {74}, "k": {75}, "l": {76},
	"m": {77}, "n": {78}, "o": {79}, "p": {80}, "q": {81}, "r": {82},
	"s": {83}, "t": {84}, "u": {85}, "v": {86}, "w": {87}, "x": {88},
	"y": {89}, "z": {90},

	"0": {48}, "1": {49}, "2": {50}, "3": {51}, "4": {52},
	"5": {53}, "6": {54}, "7": {55}, "8": {56}, "9": {57},

	"f1": {112}, "f2": {113}, "f3": {114}, "f4": {115}, "f5": {116},
	"f6": {117}, "f7": {118}, "f8": {119}, "f9": {120}, "f10": {121},
	"f11": {122}, "f12": {123}, "f13": {124}, "f14": {125}, "f15": {126},
	"f16": {127}, "f17": {128}, "f18": {129}, "f19": {130}, "f20": {131},
	"f21": {132}, "f22": {133}, "f23": {134}, "f24": {135},

	"space": {32}, "enter": {13}, "esc": {27}, "tab": {9},
	"backspace": {8}, "delete": {46}, "insert": {45},
	"home": {36}, "end": {35}, "pageup": {33}, "pagedown": {34},
	"left": {37}, "up": {38}, "right": {39}, "down": {40},
}

// keyAliases fold alternate spellings into the canonical table key.
var keyAliases = map[string]string{
	"win":    "cmd",
	"super":  "cmd",
	"return": "enter",
	"escape": "esc",
	"del":    "delete",
	"ins":    "insert",
	"pgup":   "pageup",
	"pgdn":   "pagedown",
}

// rawcodeNames is the reverse index, used to name observed events during
// macro recording and kill-key matching.
var rawcodeNames = map[uint16]string{}

func init() {
	for name, codes := range keyRawcodes {
		for _, code := range codes {
			if _, dup := rawcodeNames[code]; !dup {
				rawcodeNames[code] = name
			}
		}
	}
}

// NormalizeKeyName lowercases, trims and resolves aliases ("Return" -> "enter").
func NormalizeKeyName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := keyAliases[name]; ok {
		return canonical
	}
	return name
}

// RawcodesFor returns the rawcodes for a key name, or nil when unknown.
func RawcodesFor(name string) []uint16 {
	return keyRawcodes[NormalizeKeyName(name)]
}

// KeyName returns the canonical name for a rawcode. Unknown codes yield ""
// so callers can skip events they cannot replay.
func KeyName(rawcode uint16) string {
	return rawcodeNames[rawcode]
}

// ParseCombo splits a combo string like "Ctrl+Alt+Q" into normalized key names.
func ParseCombo(combo string) []string {
	var keys []string
	for _, part := range strings.Split(combo, "+") {
		if name := NormalizeKeyName(part); name != "" {
			keys = append(keys, name)
		}
	}
	return keys
}
