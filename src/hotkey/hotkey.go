package hotkey

import (
	"errors"
	"fmt"
	"log"
	"strings"

	gohook "github.com/robotn/gohook"

	"screenshotr/src/inputhook"
)

var ErrInvalidHotkey = errors.New("invalid hotkey")

// Combo tracks which keys of a hotkey are currently held.
type Combo struct {
	spec string
	keys []keyState
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// ParseCombo builds a Combo from a string like "Ctrl+Alt+S".
func ParseCombo(hotkeyConfig string) (*Combo, error) {
	c := &Combo{spec: hotkeyConfig}
	for _, keyName := range parseHotkey(hotkeyConfig) {
		rawcodes := keyNameToRawcodes(keyName)
		if len(rawcodes) == 0 {
			return nil, fmt.Errorf("%w: cannot map key %q in %q", ErrInvalidHotkey, keyName, hotkeyConfig)
		}
		c.keys = append(c.keys, keyState{name: keyName, rawcodes: rawcodes})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("%w: no keys in %q", ErrInvalidHotkey, hotkeyConfig)
	}
	return c, nil
}

func (c *Combo) String() string { return c.spec }

// Feed updates key state and reports true exactly once per completed combo.
func (c *Combo) Feed(ev gohook.Event) bool {
	switch ev.Kind {
	case gohook.KeyDown, gohook.KeyHold:
		c.set(ev.Rawcode, true)
		for i := range c.keys {
			if !c.keys[i].pressed {
				return false
			}
		}
		for i := range c.keys {
			c.keys[i].pressed = false
		}
		return true
	case gohook.KeyUp:
		c.set(ev.Rawcode, false)
	}
	return false
}

func (c *Combo) set(rawcode uint16, pressed bool) {
	for i := range c.keys {
		for _, rc := range c.keys[i].rawcodes {
			if rc == rawcode {
				c.keys[i].pressed = pressed
				break
			}
		}
	}
}

// Listen subscribes to hub and calls callback every time the combo completes.
// The returned func stops listening.
func Listen(hub *inputhook.Hub, hotkeyConfig string, callback func()) (func(), error) {
	combo, err := ParseCombo(hotkeyConfig)
	if err != nil {
		return nil, err
	}

	events, unsubscribe := hub.Subscribe(32)
	if err := hub.Start(); err != nil {
		unsubscribe()
		return nil, err
	}
	log.Printf("Hotkey listener configured for: %s", combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range events {
			if combo.Feed(ev) {
				log.Printf("Hotkey activated: %s", combo)
				if callback != nil {
					callback()
				}
			}
		}
		log.Printf("Hotkey event channel closed")
	}()

	return unsubscribe, nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	parts := strings.Split(strings.ToLower(hotkeyConfig), "+")
	var keys []string

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}

	return keys
}

var specialKeys = map[string]uint16{
	"space":     32, // VK_SPACE
	"enter":     13, // VK_RETURN
	"return":    13,
	"esc":       27, // VK_ESCAPE
	"escape":    27,
	"tab":       9,
	"backspace": 8,
	"delete":    46,
	"del":       46,
	"insert":    45,
	"ins":       45,
	"home":      36,
	"end":       35,
	"pageup":    33, // VK_PRIOR
	"pgup":      33,
	"pagedown":  34, // VK_NEXT
	"pgdn":      34,
	"left":      37,
	"up":        38,
	"right":     39,
	"down":      40,

	"printscreen": 44, // VK_SNAPSHOT
	"prtsc":       44,
}

// keyNameToRawcodes maps a key name to its Windows virtual key code rawcodes.
// Modifiers return both left and right variants.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))

	switch keyName {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "win", "cmd", "super":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	}

	if len(keyName) == 1 {
		ch := keyName[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16(ch-'a') + 65}
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch-'0') + 48}
		}
	}

	// F1-F24 are VK 112-135
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}

	if vk, ok := specialKeys[keyName]; ok {
		return []uint16{vk}
	}

	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
