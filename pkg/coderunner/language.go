package coderunner

import (
	"errors"
	"strings"
	"time"
)

// Language identifies a supported submission language.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// ErrUnsupportedLanguage is returned when no execution host is registered for a language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

const (
	defaultJavaScriptTimeout = 8 * time.Second
	defaultPythonTimeout     = 20 * time.Second
)

// ParseLanguage normalises user supplied language names and common aliases.
func ParseLanguage(value string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "javascript", "js", "node":
		return LanguageJavaScript, nil
	case "python", "py", "python3":
		return LanguagePython, nil
	default:
		return "", ErrUnsupportedLanguage
	}
}

// DefaultTimeout returns the documented batch budget for the language. The
// python host pays a heavier one-time startup cost and so gets the longer budget.
func DefaultTimeout(lang Language) time.Duration {
	if lang == LanguagePython {
		return defaultPythonTimeout
	}
	return defaultJavaScriptTimeout
}

func (l Language) String() string {
	return string(l)
}
