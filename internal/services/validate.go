package services

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ValidateComplaintText checks submitted text before anything leaves the
// process. It returns the text with surrounding whitespace removed.
// maxRunes <= 0 disables the length check.
func ValidateComplaintText(text string, maxRunes int) (string, error) {
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return "", ErrInvalidText
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyComplaint
	}
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		return "", ErrComplaintTooLong
	}
	return text, nil
}

// NormalizeEmail maps a missing or blank address to nil and rejects values
// that do not parse as a single bare address.
func NormalizeEmail(email *string) (*string, error) {
	if email == nil {
		return nil, nil
	}
	e := strings.TrimSpace(*email)
	if e == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e || len(e) > 320 {
		return nil, ErrInvalidEmail
	}
	return &e, nil
}
