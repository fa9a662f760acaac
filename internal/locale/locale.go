// Package locale provides the translations used when rewriting notification
// titles for redelivery.
package locale

import "strings"

// Translation keys.
const (
	KeyReminder  = "reminder"
	KeyPostponed = "postponed"
)

// DefaultLocale is used when a message has no locale or the locale is
// unknown.
const DefaultLocale = "en-EN"

var translations = map[string]map[string]string{
	"en-EN": {
		KeyReminder:  "Reminder",
		KeyPostponed: "Postponed",
	},
	"de-DE": {
		KeyReminder:  "Erinnerung",
		KeyPostponed: "Zurückgestellt",
	},
	"es-ES": {
		KeyReminder:  "Recordatorio",
		KeyPostponed: "Pospuesta",
	},
	"fr-FR": {
		KeyReminder:  "Rappel",
		KeyPostponed: "Reportée",
	},
	"it-IT": {
		KeyReminder:  "Promemoria",
		KeyPostponed: "Posticipata",
	},
}

// Translate returns the translation of key in the given locale, falling back
// to DefaultLocale for unknown locales or keys.
func Translate(loc, key string) string {
	if loc == "" {
		loc = DefaultLocale
	}

	if table, ok := translations[normalize(loc)]; ok {
		if s, ok := table[key]; ok {
			return s
		}
	}

	return translations[DefaultLocale][key]
}

// normalize maps locale spellings like "it_it" to the canonical "it-IT" form.
func normalize(loc string) string {
	loc = strings.ReplaceAll(loc, "_", "-")
	parts := strings.SplitN(loc, "-", 2)
	if len(parts) != 2 {
		return loc
	}
	return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
}
