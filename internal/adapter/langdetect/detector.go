package langdetect

import (
	"log/slog"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// minTextLen is the shortest trimmed text the detector will classify.
const minTextLen = 10

const (
	guessConfidence   = 0.8
	defaultConfidence = 0.5
)

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"hi": "Hindi",
}

// Backend is the subset of lingua.LanguageDetector used here.
type Backend interface {
	ComputeLanguageConfidenceValues(text string) []lingua.ConfidenceValue
	DetectLanguageOf(text string) (lingua.Language, bool)
}

// Detector classifies the dominant language of a text with a confidence in
// [0, 1]. It never fails: detector problems degrade to a best guess and then
// to the configured default language.
type Detector struct {
	backend         Backend
	defaultLanguage string
	logger          *slog.Logger
}

// NewDetector builds a lingua detector over the given ISO 639-1 codes, or
// over all supported languages when codes is empty.
func NewDetector(codes []string, defaultLanguage string, logger *slog.Logger) *Detector {
	unconfigured := lingua.NewLanguageDetectorBuilder()
	langs := resolveLanguages(codes)
	var builder lingua.LanguageDetectorBuilder
	if len(langs) >= 2 {
		builder = unconfigured.FromLanguages(langs...)
	} else {
		builder = unconfigured.FromAllLanguages()
	}
	return NewDetectorWithBackend(builder.Build(), defaultLanguage, logger)
}

func NewDetectorWithBackend(backend Backend, defaultLanguage string, logger *slog.Logger) *Detector {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Detector{
		backend:         backend,
		defaultLanguage: defaultLanguage,
		logger:          logger,
	}
}

// Detect returns the language code and confidence. ok is false only when the
// text is too short to classify.
func (d *Detector) Detect(text string) (code string, ok bool, confidence float64) {
	if len(strings.TrimSpace(text)) < minTextLen {
		return "", false, 0.0
	}

	if code, conf, found := d.probabilistic(text); found {
		return code, true, conf
	}

	if code, found := d.bestGuess(text); found {
		return code, true, guessConfidence
	}

	d.logger.Debug("language detection failed, using default", "default", d.defaultLanguage)
	return d.defaultLanguage, true, defaultConfidence
}

func (d *Detector) probabilistic(text string) (code string, confidence float64, found bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("probabilistic language detection panicked", "panic", r)
			found = false
		}
	}()

	values := d.backend.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 || values[0].Value() <= 0 {
		return "", 0, false
	}
	code = isoCode(values[0].Language())
	if code == "" {
		return "", 0, false
	}
	return code, clamp(values[0].Value()), true
}

func (d *Detector) bestGuess(text string) (code string, found bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("best-guess language detection panicked", "panic", r)
			found = false
		}
	}()

	lang, exists := d.backend.DetectLanguageOf(text)
	if !exists {
		return "", false
	}
	code = isoCode(lang)
	return code, code != ""
}

// LanguageName converts a language code to a readable name.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

func isoCode(lang lingua.Language) string {
	if lang == lingua.Unknown {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func resolveLanguages(codes []string) []lingua.Language {
	if len(codes) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[strings.ToLower(c)] = struct{}{}
	}
	var langs []lingua.Language
	for _, l := range lingua.AllLanguages() {
		if _, ok := want[isoCode(l)]; ok {
			langs = append(langs, l)
		}
	}
	return langs
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
