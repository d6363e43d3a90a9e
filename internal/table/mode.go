package table

import (
	"strconv"
	"strings"
)

// Mode is the edit lifecycle state of a table.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
	ModeSubmit
	ModeDiscard
)

var modeNames = []string{"VIEW", "EDIT", "SUBMIT", "DISCARD"}

func (m Mode) String() string {
	if int(m) < 0 || int(m) >= len(modeNames) {
		return "UNKNOWN"
	}
	return modeNames[m]
}

// ParseMode accepts a mode name in any case or its numeric index.
func ParseMode(value string) (Mode, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	for i, name := range modeNames {
		if name == trimmed {
			return Mode(i), true
		}
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 0 && n < len(modeNames) {
		return Mode(n), true
	}
	return 0, false
}
