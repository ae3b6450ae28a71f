// Package strcase splits identifiers into words and re-cases them.
package strcase

import (
	"go/token"
	"strings"
	"unicode"
)

// Split an identifier into words.
//
// Runs of upper case letters are treated as a single word (acronyms), except
// that the last upper case letter of a run followed by a lower case letter
// starts a new word. Digits and any other runes form their own words.
//
//	"UpperCamelAPI" -> ["Upper", "Camel", "API"]
//	"snake_case"    -> ["snake", "_", "case"]
func Split(s string) []string {
	runes := []rune(s)
	out := []string{}
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		prev, cur := class(runes[i-1]), class(runes[i])
		switch {
		case prev == upper && cur == upper:
			// An acronym ends where the next rune is lower case.
			if i+1 < len(runes) && class(runes[i+1]) == lower {
				out = append(out, string(runes[start:i]))
				start = i
			}
		case prev == upper && cur == lower:
		case prev == cur:
		default:
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return out
}

// UpperCamel converts an identifier to UpperCamelCase, discarding separators.
func UpperCamel(s string) string {
	words := alnumWords(s)
	for i, word := range words {
		words[i] = title(word)
	}
	return strings.Join(words, "")
}

// LowerCamel converts an identifier to lowerCamelCase, discarding separators.
//
// Leading acronyms are lower cased in full, eg. "HTTPClient" -> "httpClient".
func LowerCamel(s string) string {
	words := alnumWords(s)
	for i, word := range words {
		if i == 0 {
			words[i] = strings.ToLower(word)
		} else {
			words[i] = title(word)
		}
	}
	return strings.Join(words, "")
}

// Identifier returns s unchanged unless it is a Go keyword, in which case an
// underscore is appended.
func Identifier(s string) string {
	if token.IsKeyword(s) {
		return s + "_"
	}
	return s
}

func alnumWords(s string) []string {
	out := []string{}
	for _, word := range Split(s) {
		r := []rune(word)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, word)
		}
	}
	return out
}

func title(word string) string {
	runes := []rune(word)
	if isAcronym(runes) {
		return word
	}
	return strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
}

func isAcronym(runes []rune) bool {
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

type runeClass int

const (
	lower runeClass = iota
	upper
	digit
	other
)

func class(r rune) runeClass {
	switch {
	case unicode.IsLower(r):
		return lower
	case unicode.IsUpper(r):
		return upper
	case unicode.IsDigit(r):
		return digit
	default:
		return other
	}
}
