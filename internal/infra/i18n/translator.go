package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var LocalesFS embed.FS

// DefaultLang is the language user-facing payment messages are rendered in.
const DefaultLang = "fr"

// Translator renders payment messages from a flat key space. Locale files
// may nest keys; "sama: {error: {1013: ...}}" and "sama.error.1013: ..."
// address the same message.
type Translator struct {
	lang     string
	messages map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	name := "locales/" + lang + ".yaml"
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read locale %s: %w", name, err)
	}
	tr, err := parseLocale(raw)
	if err != nil {
		return nil, fmt.Errorf("locale %s: %w", name, err)
	}
	tr.lang = lang
	return tr, nil
}

func parseLocale(raw []byte) (*Translator, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	msgs := make(map[string]string)
	if err := flatten("", doc, msgs); err != nil {
		return nil, err
	}
	return &Translator{messages: msgs}, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %q: expected a string or a mapping, got %T", key, v)
		}
	}
	return nil
}

// Lang is the loaded language code.
func (t *Translator) Lang() string { return t.lang }

// T renders key with args. Missing keys render as the key itself.
func (t *Translator) T(key string, args ...any) string {
	msg, ok := t.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Has reports whether key has a message.
func (t *Translator) Has(key string) bool {
	_, ok := t.messages[key]
	return ok
}
