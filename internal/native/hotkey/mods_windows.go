package hotkey

import (
	"golang.design/x/hotkey"

	"github.com/dshills/panpad/internal/keys"
)

var modMap = map[keys.Modifier]hotkey.Modifier{
	keys.ModShift: hotkey.ModShift,
	keys.ModCtrl:  hotkey.ModCtrl,
	keys.ModAlt:   hotkey.ModAlt,
	keys.ModSuper: hotkey.ModWin,
}
