package hotkey

import (
	"golang.design/x/hotkey"

	"github.com/dshills/panpad/internal/keys"
)

// X11 modifier masks: Mod1 is Alt and Mod4 is Super on common layouts.
var modMap = map[keys.Modifier]hotkey.Modifier{
	keys.ModShift: hotkey.ModShift,
	keys.ModCtrl:  hotkey.ModCtrl,
	keys.ModAlt:   hotkey.Mod1,
	keys.ModSuper: hotkey.Mod4,
}
