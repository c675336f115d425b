package hostlink

import (
	"fmt"
	"log"
	"os"
)

type logger struct {
	prefix       string
	customLogger *log.Logger
	traceFrames  bool
}

func newLogger(prefix string, customLogger *log.Logger) (l *logger) {
	l = &logger{
		prefix:       prefix,
		customLogger: customLogger,
	}

	return
}

// Logs a frame going out (dir ">") or coming in (dir "<"), if frame
// tracing is enabled.
func (l *logger) Frame(dir string, frame []byte) {
	if l.traceFrames {
		l.write(fmt.Sprintf("%s [trace]: %s %q\n", l.prefix, dir, frame))
	}

	return
}

func (l *logger) Info(msg string) {
	l.write(fmt.Sprintf("%s [info]: %s\n", l.prefix, msg))

	return
}

func (l *logger) Infof(format string, msg ...interface{}) {
	l.write(fmt.Sprintf("%s [info]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))

	return
}

func (l *logger) Warning(msg string) {
	l.write(fmt.Sprintf("%s [warn]: %s\n", l.prefix, msg))

	return
}

func (l *logger) Warningf(format string, msg ...interface{}) {
	l.write(fmt.Sprintf("%s [warn]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))

	return
}

func (l *logger) Error(msg string) {
	l.write(fmt.Sprintf("%s [error]: %s\n", l.prefix, msg))

	return
}

func (l *logger) Errorf(format string, msg ...interface{}) {
	l.write(fmt.Sprintf("%s [error]: %s\n", l.prefix, fmt.Sprintf(format, msg...)))

	return
}

func (l *logger) write(msg string) {
	if l.customLogger == nil {
		os.Stdout.WriteString(msg)
	} else {
		l.customLogger.Print(msg)
	}

	return
}
