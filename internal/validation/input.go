// Package validation sanity-checks client-supplied identifiers before they
// reach the engine or the database.
package validation

import (
	"fmt"
	"regexp"
)

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ValidateGameID checks a session id.
func ValidateGameID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("game id must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("game id may only contain alphanumerics, hyphens and underscores")
	}
	return nil
}

// ValidateCardID checks a card id from a resolve request.
func ValidateCardID(id string) error {
	if len(id) == 0 || len(id) > 128 {
		return fmt.Errorf("card id must be 1-128 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("card id may only contain alphanumerics, hyphens and underscores")
	}
	return nil
}

// ValidateDirection checks a swipe direction.
func ValidateDirection(direction string) error {
	if direction != "left" && direction != "right" {
		return fmt.Errorf("direction must be 'left' or 'right'")
	}
	return nil
}

// ValidateWorldSlug checks a save slot key.
func ValidateWorldSlug(slug string) error {
	if len(slug) == 0 || len(slug) > 64 {
		return fmt.Errorf("world slug must be 1-64 characters")
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("world slug may only contain lowercase alphanumerics and underscores")
	}
	return nil
}

// ValidateTheme caps the world generation theme prompt.
func ValidateTheme(theme string) error {
	if len(theme) > 500 {
		return fmt.Errorf("theme must be at most 500 characters")
	}
	return nil
}
