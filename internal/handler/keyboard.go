package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Keyboard folds a run of key presses into one type_keys statement.
type Keyboard struct{}

func (Keyboard) Name() string { return "keyboard" }

func (Keyboard) Handle(_ context.Context, in Input) (Output, error) {
	var (
		b      strings.Builder
		target event.NodeRef
	)
	for _, e := range in.Events {
		k, ok := e.(event.KeyboardEvent)
		if !ok || k.Phase != event.PhaseDown {
			continue
		}
		if target == nil && k.Node != nil {
			target = k.Node
		}
		b.WriteString(sendKeysToken(k))
	}
	keys := norm.NFC.String(b.String())
	if keys == "" {
		return Output{}, fmt.Errorf("keyboard: no printable key presses in group of %d events", len(in.Events))
	}
	if target == nil {
		return Output{Text: "send_keys(" + strconv.Quote(keys) + ")"}, nil
	}
	return Output{Target: target, Text: "type_keys(" + strconv.Quote(keys) + ")"}, nil
}

// namedKeys maps hook key names to send_keys codes.
var namedKeys = map[string]string{
	"return":    "{ENTER}",
	"enter":     "{ENTER}",
	"tab":       "{TAB}",
	"back":      "{BACKSPACE}",
	"backspace": "{BACKSPACE}",
	"escape":    "{ESC}",
	"esc":       "{ESC}",
	"delete":    "{DELETE}",
	"insert":    "{INSERT}",
	"home":      "{HOME}",
	"end":       "{END}",
	"prior":     "{PGUP}",
	"pageup":    "{PGUP}",
	"next":      "{PGDN}",
	"pagedown":  "{PGDN}",
	"left":      "{LEFT}",
	"right":     "{RIGHT}",
	"up":        "{UP}",
	"down":      "{DOWN}",
	"space":     "{SPACE}",
}

// modifierKeys produce no text of their own; their effect shows in Char.
var modifierKeys = map[string]bool{
	"shift": true, "lshift": true, "rshift": true,
	"control": true, "lcontrol": true, "rcontrol": true, "ctrl": true,
	"menu": true, "lmenu": true, "rmenu": true, "alt": true,
	"capital": true, "capslock": true,
}

func sendKeysToken(k event.KeyboardEvent) string {
	name := strings.ToLower(k.Key)
	if code, ok := namedKeys[name]; ok {
		return code
	}
	if k.Char == ' ' {
		return "{SPACE}"
	}
	if k.Char >= 0x20 {
		switch k.Char {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			return "{" + string(k.Char) + "}"
		}
		return string(k.Char)
	}
	if modifierKeys[name] || name == "" {
		return ""
	}
	return "{" + strings.ToUpper(k.Key) + "}"
}
