// Package fingerprint derives deterministic grouping keys from raw error
// events. Events whose messages differ only in dynamic substrings (numbers,
// quoted values, UUIDs, paths) produce identical hashes; events with
// different exception types never collide.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vikramshenoy/faultline/pkg/models"
)

const (
	maxMessageLen = 200
	// componentSep joins fingerprint components before hashing. NUL does not
	// occur in exception types, messages, or file paths.
	componentSep = "\x00"
)

// Normalization regexes compiled once at package init.
var (
	reQuoted     = regexp.MustCompile(`'[^']*'|"[^"]*"` + "|`[^`]*`")
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reHexToken   = regexp.MustCompile(`0x[0-9a-fA-F]+|\b[0-9a-fA-F]{8,}\b`)
	reURL        = regexp.MustCompile(`https?://[^\s]+`)
	reAbsPath    = regexp.MustCompile(`(?:[A-Za-z]:)?(?:/[\w.\-]+){2,}`)
	reInteger    = regexp.MustCompile(`\b\d+\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Directories whose frames never identify application code.
var vendoredDirs = []string{
	"node_modules/",
	"vendor/",
	"site-packages/",
	"dist-packages/",
	"bower_components/",
}

// Result is the output of fingerprinting one event.
type Result struct {
	// Fingerprint is the ordered component list the hash is derived from.
	Fingerprint []string
	// Hash is the stable SHA-256 hex digest of the components.
	Hash string
	// Culprit is "function (file:line)" from the chosen frame, empty when
	// the event carries no stack trace.
	Culprit string
	// Title is a short human label for a new issue grouped under this hash.
	Title string
}

// Compute derives the grouping key for an event. Deterministic: the same
// normalized inputs always yield the same hash.
func Compute(event *models.RawEvent) Result {
	// Producer-supplied fingerprints override grouping entirely.
	if len(event.Fingerprint) > 0 {
		components := append([]string(nil), event.Fingerprint...)
		return Result{
			Fingerprint: components,
			Hash:        hashComponents(components),
			Culprit:     culpritFrom(event),
			Title:       title(event),
		}
	}

	var components []string
	if event.ExceptionType != "" {
		components = append(components, event.ExceptionType)
	}
	if msg := NormalizeMessage(pickMessage(event)); msg != "" {
		components = append(components, msg)
	}
	if frame := appFrame(event.StackFrames); frame != nil {
		components = append(components, frame.File)
		if frame.Function != "" {
			components = append(components, frame.Function)
		}
	}
	if len(components) == 0 {
		components = []string{event.Platform, truncate(pickMessage(event), maxMessageLen)}
	}

	return Result{
		Fingerprint: components,
		Hash:        hashComponents(components),
		Culprit:     culpritFrom(event),
		Title:       title(event),
	}
}

// NormalizeMessage strips dynamic substrings from a message so semantically
// identical errors normalize to the same string.
func NormalizeMessage(msg string) string {
	msg = reQuoted.ReplaceAllString(msg, "<str>")
	msg = reURL.ReplaceAllString(msg, "<url>")
	msg = reUUID.ReplaceAllString(msg, "<uuid>")
	msg = reHexToken.ReplaceAllString(msg, "<hex>")
	msg = reAbsPath.ReplaceAllString(msg, "<path>")
	msg = reInteger.ReplaceAllString(msg, "<int>")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.TrimSpace(msg)
	return truncate(msg, maxMessageLen)
}

// appFrame returns the first frame not inside a vendored directory, falling
// back to the very first frame when every frame is vendored. Nil for an
// empty trace.
func appFrame(frames []models.StackFrame) *models.StackFrame {
	for i := range frames {
		if !isVendored(frames[i].File) {
			return &frames[i]
		}
	}
	if len(frames) > 0 {
		return &frames[0]
	}
	return nil
}

func isVendored(file string) bool {
	for _, dir := range vendoredDirs {
		if strings.Contains(file, dir) {
			return true
		}
	}
	return false
}

func culpritFrom(event *models.RawEvent) string {
	frame := appFrame(event.StackFrames)
	if frame == nil {
		return ""
	}
	fn := frame.Function
	if fn == "" {
		fn = "?"
	}
	return fmt.Sprintf("%s (%s:%d)", fn, frame.File, frame.Line)
}

func title(event *models.RawEvent) string {
	if event.ExceptionType != "" {
		if event.ExceptionMessage != "" {
			return truncate(event.ExceptionType+": "+event.ExceptionMessage, 256)
		}
		return event.ExceptionType
	}
	return truncate(pickMessage(event), 256)
}

func pickMessage(event *models.RawEvent) string {
	if event.ExceptionMessage != "" {
		return event.ExceptionMessage
	}
	return event.Message
}

func hashComponents(components []string) string {
	sum := sha256.Sum256([]byte(strings.Join(components, componentSep)))
	return fmt.Sprintf("%x", sum)
}

// truncate cuts s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
