package queuestore

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrBadQueueName is returned by Normalize when a queue name fails
// validation (spec.md §4.4).
var ErrBadQueueName = errors.New("queuestore: bad queue name")

// Normalize validates and canonicalizes a queue path: it must begin with
// "/", consist of non-empty segments that aren't "." or "..", contain only
// printable UTF-8 with no control characters, and have any trailing "/"
// stripped. Normalization is idempotent: Normalize(Normalize(q)) == Normalize(q).
func Normalize(name string) (string, error) {
	if name == "" || name[0] != '/' {
		return "", ErrBadQueueName
	}
	if !utf8.ValidString(name) {
		return "", ErrBadQueueName
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == 0 {
			return "", ErrBadQueueName
		}
	}

	trimmed := name
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	if trimmed == "" {
		trimmed = "/"
	}
	if trimmed == "/" {
		return "", ErrBadQueueName
	}

	segments := strings.Split(trimmed[1:], "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrBadQueueName
		}
	}

	return trimmed, nil
}

// dirName maps a normalized queue path to its on-disk subdirectory name, by
// replacing "/" with "%2F" (spec.md §4.4).
func dirName(normalized string) string {
	return strings.ReplaceAll(normalized, "/", "%2F")
}
