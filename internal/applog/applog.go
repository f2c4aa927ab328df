// Package applog is a thin leveled wrapper around the standard library
// log package, matching the teacher's own log.Printf call-site style
// rather than pulling in a structured logging library neither the
// teacher nor the rest of the retrieved pack's relevant repos carry.
package applog

import "log"

var debug = false

// SetDebug toggles Debugf output, mirroring the teacher's --debug flag.
func SetDebug(enabled bool) {
	debug = enabled
}

func Debugf(format string, args ...any) {
	if debug {
		log.Printf("[debug] "+format, args...)
	}
}

func Warnf(format string, args ...any) {
	log.Printf("[warn] "+format, args...)
}

func Errorf(format string, args ...any) {
	log.Printf("[error] "+format, args...)
}

func Infof(format string, args ...any) {
	log.Printf("[info] "+format, args...)
}
