package coderunner

import (
	"regexp"
	"strings"
)

// Signature describes the entry point detected in submitted source.
type Signature struct {
	Name       string
	ParamNames []string
	// Detected is false when no declaration matched and Name is the caller's fallback.
	Detected bool
}

const identifierPattern = `[A-Za-z_$][A-Za-z0-9_$]*`

var validIdentifier = regexp.MustCompile(`^` + identifierPattern + `$`)

// declarationForm is one way a language can declare a callable. The pattern
// contains a %s placeholder for the name and must end right after the opening
// parenthesis of the parameter list, unless singleParam is set.
type declarationForm struct {
	pattern     string
	singleParam bool
	lambda      bool
	arrow       bool
}

var declarationForms = map[Language][]declarationForm{
	LanguageJavaScript: {
		{pattern: `(?m)(?:^|[^.\w$])(?:async\s+)?function\s*\*?\s*(%s)\s*\(`},
		{pattern: `(?m)(?:const|let|var)\s+(%s)\s*=\s*(?:async\s+)?function\b[^(]*\(`},
		{pattern: `(?m)(?:const|let|var)\s+(%s)\s*=\s*(?:async\s*)?\(`, arrow: true},
		{pattern: `(?m)(?:const|let|var)\s+(%s)\s*=\s*(?:async\s+)?(` + identifierPattern + `)\s*=>`, singleParam: true},
	},
	LanguagePython: {
		{pattern: `(?m)^[ \t]*(?:async\s+)?def\s+(%s)\s*\(`},
		{pattern: `(?m)^[ \t]*(%s)\s*=\s*lambda\b([^:]*):`, lambda: true},
	},
}

// DetectSignature finds the entry point declared in source. A declaration of
// fallback is preferred; otherwise the first declaration in form order wins.
// When nothing matches the fallback is returned with no parameters.
func DetectSignature(lang Language, source, fallback string) Signature {
	forms := declarationForms[lang]
	fallback = strings.TrimSpace(fallback)

	if validIdentifier.MatchString(fallback) {
		for _, form := range forms {
			if sig, ok := matchDeclaration(lang, form, source, regexp.QuoteMeta(fallback)); ok {
				return sig
			}
		}
	}

	for _, form := range forms {
		if sig, ok := matchDeclaration(lang, form, source, identifierPattern); ok {
			return sig
		}
	}

	return Signature{Name: fallback, ParamNames: []string{}}
}

func matchDeclaration(lang Language, form declarationForm, source, name string) (Signature, bool) {
	re := regexp.MustCompile(strings.Replace(form.pattern, "%s", name, 1))

	for _, loc := range re.FindAllStringSubmatchIndex(source, -1) {
		declared := source[loc[2]:loc[3]]
		if lang == LanguagePython && isDunder(declared) {
			continue
		}
		var paramText string
		switch {
		case form.singleParam, form.lambda:
			paramText = source[loc[4]:loc[5]]
		default:
			text, end, ok := balancedParams(source, loc[1])
			if !ok {
				continue
			}
			// a parenthesised initialiser only declares a function when => follows
			if form.arrow && !strings.HasPrefix(strings.TrimSpace(source[end:]), "=>") {
				continue
			}
			paramText = text
		}
		return Signature{
			Name:       declared,
			ParamNames: cleanParams(lang, paramText),
			Detected:   true,
		}, true
	}
	return Signature{}, false
}

// balancedParams returns the text between the parenthesis opened just before
// start and its matching closer, plus the index after the closer.
func balancedParams(source string, start int) (string, int, bool) {
	depth := 1
	inSingle, inDouble := false, false
	for i := start; i < len(source); i++ {
		ch := source[i]
		escaped := i > 0 && source[i-1] == '\\'
		switch {
		case ch == '\'' && !inDouble && !escaped:
			inSingle = !inSingle
		case ch == '"' && !inSingle && !escaped:
			inDouble = !inDouble
		case inSingle || inDouble:
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
			if depth == 0 {
				return source[start:i], i + 1, true
			}
		}
	}
	return "", 0, false
}

func cleanParams(lang Language, text string) []string {
	params := make([]string, 0, 4)
	for i, raw := range SplitTopLevel(text) {
		name := raw
		if idx := strings.Index(name, "="); idx >= 0 {
			name = name[:idx]
		}
		if idx := strings.Index(name, ":"); idx >= 0 {
			name = name[:idx]
		}
		name = strings.TrimLeft(strings.TrimSpace(name), "*.")
		name = strings.TrimSpace(name)
		if name == "" || name == "/" {
			continue
		}
		if lang == LanguagePython && i == 0 && (name == "self" || name == "cls") {
			continue
		}
		params = append(params, name)
	}
	return params
}

func isDunder(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
