// Package player owns the single audio output device.
//
// At most one clip plays at a time. A scheduled ring pre-empts whatever is
// playing; manual test-plays are refused while busy. Playback runs through
// the first available external player (afplay, aplay, mpg123, ffplay, cvlc)
// so the daemon itself never decodes audio. Every failure here is logged and
// non-fatal: a bell that cannot ring must never take down the scheduler.
package player
