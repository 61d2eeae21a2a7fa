// mindmesh/utils/color/color.go
package color

import (
	"github.com/fatih/color"
)

var (
	promptColor  = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	replyColor   = color.New(color.FgHiWhite)
	dimColor     = color.New(color.Faint)
)

func Prompt(s string) string {
	return promptColor.Sprint(s)
}

func Info(s string) string {
	return infoColor.Sprint(s)
}

// Warning is used for failures the user can retry, like rate limiting.
func Warning(s string) string {
	return warningColor.Sprint(s)
}

func Error(s string) string {
	return errorColor.Sprint(s)
}

func Reply(s string) string {
	return replyColor.Sprint(s)
}

func Dim(s string) string {
	return dimColor.Sprint(s)
}

// Disable turns colouring off, e.g. when output is not a terminal.
func Disable() {
	color.NoColor = true
}
