package locale_test

import (
	"testing"

	"github.com/pushbucket/pushbucket/internal/locale"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		loc  string
		key  string
		want string
	}{
		{"en-EN", locale.KeyReminder, "Reminder"},
		{"de-DE", locale.KeyReminder, "Erinnerung"},
		{"it-IT", locale.KeyReminder, "Promemoria"},
		{"it-IT", locale.KeyPostponed, "Posticipata"},
		{"fr-FR", locale.KeyPostponed, "Reportée"},
		{"es-ES", locale.KeyReminder, "Recordatorio"},

		// Normalization of spelling variants.
		{"it_it", locale.KeyReminder, "Promemoria"},
		{"DE-de", locale.KeyReminder, "Erinnerung"},

		// Fallbacks.
		{"", locale.KeyReminder, "Reminder"},
		{"xx-XX", locale.KeyReminder, "Reminder"},
	}

	for _, tc := range cases {
		if got := locale.Translate(tc.loc, tc.key); got != tc.want {
			t.Errorf("Translate(%q, %q) = %q, want %q", tc.loc, tc.key, got, tc.want)
		}
	}
}

func TestTranslate_UnknownKeyFallsBack(t *testing.T) {
	if got := locale.Translate("de-DE", "no-such-key"); got != "" {
		t.Errorf("unknown key should resolve to empty default, got %q", got)
	}
}
