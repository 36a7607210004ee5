package input

import "fmt"

// Chord is a synthetic key combination in xdotool keysym syntax,
// e.g. "Return", "ctrl+i", "alt+shift+F4".
type Chord string

// Common chord constants for use with Send.
const (
	Return    Chord = "Return"
	Escape    Chord = "Escape"
	Tab       Chord = "Tab"
	Backspace Chord = "BackSpace"
	Up        Chord = "Up"
	Down      Chord = "Down"
	Left      Chord = "Left"
	Right     Chord = "Right"
	Home      Chord = "Home"
	End       Chord = "End"
	PageUp    Chord = "Prior"
	PageDown  Chord = "Next"
	Space     Chord = "space"
	Delete    Chord = "Delete"

	F1  Chord = "F1"
	F2  Chord = "F2"
	F3  Chord = "F3"
	F4  Chord = "F4"
	F5  Chord = "F5"
	F6  Chord = "F6"
	F7  Chord = "F7"
	F8  Chord = "F8"
	F9  Chord = "F9"
	F10 Chord = "F10"
	F11 Chord = "F11"
	F12 Chord = "F12"
)

// Ctrl returns the chord for Ctrl+<key>.
func Ctrl(key string) Chord {
	return Chord(fmt.Sprintf("ctrl+%s", key))
}

// Alt returns the chord for Alt+<key>.
func Alt(key string) Chord {
	return Chord(fmt.Sprintf("alt+%s", key))
}

// Shift returns the chord for Shift+<key>.
func Shift(key string) Chord {
	return Chord(fmt.Sprintf("shift+%s", key))
}
