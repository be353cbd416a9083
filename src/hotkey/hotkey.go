// Package hotkey watches global key combos with gohook and fires a callback
// per combo. One hook loop serves every binding.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gohook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"select2speak/src/logutil"
)

var ErrNoBindings = errors.New("no valid hotkey bindings")

// Binding ties a combo like "Ctrl+Alt+S" to a callback. Fire runs on the hook
// goroutine and must not block.
type Binding struct {
	Combo string
	Fire  func()
}

type combo struct {
	spec    string
	keys    []keyState
	fire    func()
	pending bool
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// matcher tracks pressed keys across all combos.
type matcher struct {
	combos []*combo
	log    zerolog.Logger
}

func newMatcher(log zerolog.Logger, bindings []Binding) (*matcher, error) {
	m := &matcher{log: log}
	for _, b := range bindings {
		if strings.TrimSpace(b.Combo) == "" || b.Fire == nil {
			continue
		}
		c := &combo{spec: b.Combo, fire: b.Fire}
		for _, name := range parseHotkey(b.Combo) {
			codes := keyNameToRawcodes(name)
			if len(codes) == 0 {
				log.Error().Str("key", name).Str("combo", b.Combo).Msg("cannot map key, hotkey may not work correctly")
				continue
			}
			c.keys = append(c.keys, keyState{name: name, rawcodes: codes})
		}
		if len(c.keys) == 0 {
			log.Error().Str("combo", b.Combo).Msg("no valid keys in hotkey")
			continue
		}
		m.combos = append(m.combos, c)
	}
	if len(m.combos) == 0 {
		return nil, ErrNoBindings
	}
	return m, nil
}

// down records a key press and returns the combos it completed. A completed
// combo resets so holding the keys does not repeat it.
func (m *matcher) down(rawcode uint16) []*combo {
	var hits []*combo
	for _, c := range m.combos {
		matched := false
		for i := range c.keys {
			if c.keys[i].matches(rawcode) {
				c.keys[i].pressed = true
				matched = true
			}
		}
		if matched && c.allPressed() {
			c.reset()
			hits = append(hits, c)
		}
	}
	return hits
}

func (m *matcher) up(rawcode uint16) {
	for _, c := range m.combos {
		for i := range c.keys {
			if c.keys[i].matches(rawcode) {
				c.keys[i].pressed = false
			}
		}
	}
}

func (k keyState) matches(rawcode uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == rawcode {
			return true
		}
	}
	return false
}

func (c *combo) allPressed() bool {
	for _, k := range c.keys {
		if !k.pressed {
			return false
		}
	}
	return true
}

func (c *combo) reset() {
	for i := range c.keys {
		c.keys[i].pressed = false
	}
}

// Listen starts the hook loop in a goroutine. It stops when ctx is done.
func Listen(ctx context.Context, bindings ...Binding) error {
	log := logutil.Component("hotkey")
	m, err := newMatcher(log, bindings)
	if err != nil {
		return err
	}
	for _, c := range m.combos {
		log.Info().Str("combo", c.spec).Msg("hotkey registered")
	}

	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("hotkey: gohook.Start returned nil channel")
	}
	go func() {
		<-ctx.Done()
		gohook.End()
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("hotkey goroutine panicked")
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				for _, c := range m.down(ev.Rawcode) {
					log.Info().Str("combo", c.spec).Msg("hotkey pressed")
					c.fire()
				}
			case gohook.KeyUp:
				m.up(ev.Rawcode)
			}
		}
		log.Debug().Msg("event channel closed")
	}()
	return nil
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
		case "win", "cmd", "super", "meta":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

// Rawcodes differ per platform: Windows reports virtual-key codes, X11
// reports keysyms. Both are listed so one table serves either.
var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163, 0xffe3, 0xffe4},
	"alt":   {164, 165, 0xffe9, 0xffea},
	"shift": {160, 161, 0xffe1, 0xffe2},
	"cmd":   {91, 92, 0xffeb, 0xffec},

	"space":     {32},
	"enter":     {13, 0xff0d},
	"return":    {13, 0xff0d},
	"esc":       {27, 0xff1b},
	"escape":    {27, 0xff1b},
	"tab":       {9, 0xff09},
	"backspace": {8, 0xff08},
	"delete":    {46, 0xffff},
	"del":       {46, 0xffff},
	"insert":    {45, 0xff63},
	"ins":       {45, 0xff63},
	"home":      {36, 0xff50},
	"end":       {35, 0xff57},
	"pageup":    {33, 0xff55},
	"pgup":      {33, 0xff55},
	"pagedown":  {34, 0xff56},
	"pgdn":      {34, 0xff56},
	"left":      {37, 0xff51},
	"up":        {38, 0xff52},
	"right":     {39, 0xff53},
	"down":      {40, 0xff54},
}

// keyNameToRawcodes maps a key name to every rawcode it may arrive as.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if codes, ok := namedKeys[keyName]; ok {
		return codes
	}
	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			// VK code is the upper-case letter, the keysym the lower-case one.
			return []uint16{uint16(c - 'a' + 'A'), uint16(c)}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n), uint16(0xffbd + n)}
	}
	return nil
}
