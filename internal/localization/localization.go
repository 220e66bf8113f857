// Package localization provides functionality for internationalization (i18n).
// Translations are JSON files named after the language code (e.g. "en.json");
// the default set is embedded into the binary.
package localization

import (
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed locales/*.json
var embedded embed.FS

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	fallback     string
	mu           sync.RWMutex
}

// NewDefaultLocalizer loads the embedded translations.
func NewDefaultLocalizer(fallback string) (*Localizer, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	return NewLocalizer(sub, fallback)
}

// NewLocalizer loads every *.json file at the root of fsys. fallback is the
// language used when a key is missing in the requested one.
func NewLocalizer(fsys fs.FS, fallback string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		fallback:     fallback,
	}

	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, path.Join(".", file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	if _, ok := l.translations[fallback]; !ok {
		return nil, fmt.Errorf("fallback language %q has no translations", fallback)
	}
	return l, nil
}

// Languages returns the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Якщо ключа немає, пробуємо мову за замовчуванням
	if lang != l.fallback {
		if fb, ok := l.translations[l.fallback]; ok {
			if value, ok := fb[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format is GetString followed by fmt.Sprintf.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// RenderNotice turns an engine notice into user-facing text. Relayed
// content is returned as is and has no text of its own.
func (l *Localizer) RenderNotice(lang string, n models.Notice) string {
	key := string(n.Kind)
	switch n.Kind {
	case models.NoticeRelay:
		if n.Content != nil {
			return n.Content.Text
		}
		return ""
	case models.NoticeRevealNames:
		return l.Format(lang, key, n.Name)
	case models.NoticeWarning:
		return l.Format(lang, key, n.Count, n.Limit)
	case models.NoticeBanned:
		return l.Format(lang, key, n.Amount)
	case models.NoticeUnbanned:
		return l.Format(lang, key, n.Balance)
	case models.NoticeBalanceCredited, models.NoticeBalanceDebited:
		return l.Format(lang, key, n.Amount, n.Balance)
	case models.NoticeReferralReward:
		return l.Format(lang, key, n.Amount, n.Count)
	}
	return l.GetString(lang, key)
}

// RenderError turns an engine error into a user-facing message.
func (l *Localizer) RenderError(lang string, err error) string {
	var be *engine.BalanceError
	if errors.As(err, &be) {
		return l.Format(lang, "error_insufficient_balance", be.Required, be.Balance)
	}
	return l.GetString(lang, "error_"+engine.CodeOf(err))
}
