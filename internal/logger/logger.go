// Package logger provides leveled, colored logging for the service.
package logger

import (
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	infoLogger  = log.New(os.Stdout, color.New(color.FgCyan).Sprint("INFO:  "), log.Ldate|log.Ltime)
	warnLogger  = log.New(os.Stdout, color.New(color.FgYellow).Sprint("WARN:  "), log.Ldate|log.Ltime)
	errorLogger = log.New(os.Stderr, color.New(color.FgRed).Sprint("ERROR: "), log.Ldate|log.Ltime)
)

func Info(v ...any) {
	infoLogger.Println(v...)
}

func Infof(format string, v ...any) {
	infoLogger.Printf(format, v...)
}

func Warn(v ...any) {
	warnLogger.Println(v...)
}

func Warnf(format string, v ...any) {
	warnLogger.Printf(format, v...)
}

func Error(v ...any) {
	errorLogger.Println(v...)
}

func Errorf(format string, v ...any) {
	errorLogger.Printf(format, v...)
}

// Fatalf logs at error level and exits.
func Fatalf(format string, v ...any) {
	errorLogger.Printf(format, v...)
	os.Exit(1)
}
