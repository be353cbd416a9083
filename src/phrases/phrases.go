// Package phrases holds the fixed fallback utterances, per locale.
package phrases

import (
	"golang.org/x/text/language"
)

type Key int

const (
	NoText Key = iota
	NoBitmap
	NoScreenshot
	Welcome
	Active
	Go
)

var supported = []language.Tag{
	language.English,
	language.Italian,
}

var table = map[language.Tag]map[Key]string{
	language.English: {
		NoText:       "No text found",
		NoBitmap:     "No bitmap",
		NoScreenshot: "No screenshot",
		Welcome:      "Select to speak is ready",
		Active:       "select2speak active!",
		Go:           "GO :)",
	},
	language.Italian: {
		NoText:       "Nessun testo trovato",
		NoBitmap:     "Nessuna immagine",
		NoScreenshot: "Nessuno screenshot",
		Welcome:      "Seleziona per ascoltare è pronto",
		Active:       "select2speak attivo!",
		Go:           "VIA :)",
	},
}

var matcher = language.NewMatcher(supported)

// Book resolves phrases for one locale.
type Book struct {
	tag language.Tag
}

// For picks the closest supported locale to the BCP 47 string locale.
// Unknown or malformed locales fall back to English.
func For(locale string) Book {
	tag, err := language.Parse(locale)
	if err != nil {
		return Book{tag: language.English}
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Book{tag: language.English}
	}
	return Book{tag: supported[idx]}
}

func (b Book) Tag() language.Tag { return b.tag }

func (b Book) Get(k Key) string {
	if s, ok := table[b.tag][k]; ok {
		return s
	}
	return table[language.English][k]
}
