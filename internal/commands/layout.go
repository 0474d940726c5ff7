package commands

import (
	"strings"
	"unicode"
)

// cyrillicToLatin maps keys of the Russian ЙЦУКЕН layout to the Latin
// letters sharing the same physical key on QWERTY.
var cyrillicToLatin = map[rune]rune{
	'й': 'q', 'ц': 'w', 'у': 'e', 'к': 'r', 'е': 't', 'н': 'y', 'г': 'u', 'ш': 'i', 'щ': 'o', 'з': 'p',
	'ф': 'a', 'ы': 's', 'в': 'd', 'а': 'f', 'п': 'g', 'р': 'h', 'о': 'j', 'л': 'k', 'д': 'l',
	'я': 'z', 'ч': 'x', 'с': 'c', 'м': 'v', 'и': 'b', 'т': 'n', 'ь': 'm',
}

// FixLayout rewrites a name typed with the Russian keyboard layout active,
// e.g. "фвв" becomes "add". Names without Cyrillic letters are returned
// unchanged.
func FixLayout(name string) string {
	if !strings.ContainsFunc(name, isCyrillic) {
		return name
	}
	return strings.Map(func(r rune) rune {
		if latin, ok := cyrillicToLatin[unicode.ToLower(r)]; ok {
			return latin
		}
		return r
	}, name)
}

func isCyrillic(r rune) bool {
	return unicode.Is(unicode.Cyrillic, r)
}
