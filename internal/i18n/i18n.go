// Package i18n translates response messages with go-i18n. Translations are
// YAML files embedded from locales/, one per language tag.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	once   sync.Once
	bundle *i18n.Bundle
	err    error
)

// Load parses the embedded translations. Calling it more than once is a no-op.
func Load() error {
	once.Do(func() {
		b := i18n.NewBundle(language.AmericanEnglish)
		b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		files, rerr := fs.ReadDir(localeFS, "locales")
		if rerr != nil {
			err = rerr
			return
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			data, rerr := localeFS.ReadFile("locales/" + f.Name())
			if rerr != nil {
				err = rerr
				return
			}
			if _, perr := b.ParseMessageFileBytes(data, f.Name()); perr != nil {
				err = fmt.Errorf("parse %s: %w", f.Name(), perr)
				return
			}
		}
		bundle = b
	})
	return err
}

// Languages returns the tags that have a translation file.
func Languages() []language.Tag {
	if Load() != nil {
		return []language.Tag{language.AmericanEnglish}
	}
	return bundle.LanguageTags()
}

// T translates id for lang (a BCP 47 tag or Accept-Language value). Missing
// translations fall back to English, then to id itself.
func T(lang, id string) string {
	if Load() != nil {
		return id
	}
	msg, lerr := i18n.NewLocalizer(bundle, lang, "en-US").Localize(&i18n.LocalizeConfig{MessageID: id})
	if lerr != nil || msg == "" {
		return id
	}
	return msg
}
