package util

import (
	"fmt"
	"log"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
)

// Verbose enables Debugf output. Set once at startup, before any goroutines
// log.
var Verbose bool

// Debugf logs a debug message when Verbose is set.
func Debugf(format string, args ...any) {
	if !Verbose {
		return
	}
	log.Printf("%s %s", colorize(colorBlue, "DEBUG"), fmt.Sprintf(format, args...))
}

// Infof logs an info message.
func Infof(format string, args ...any) {
	log.Printf("%s %s", colorize(colorGreen, "INFO"), fmt.Sprintf(format, args...))
}

// Warnf logs a warning message.
func Warnf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Highlightf logs a highlighted message.
func Highlightf(format string, args ...any) {
	log.Printf("%s %s", colorize(colorBlue, "NOTE"), fmt.Sprintf(format, args...))
}

func colorize(color, msg string) string {
	return color + msg + colorReset
}
