package language

import "strings"

// tag is one known language with the identifiers media tools emit for it:
// the ISO 639-2 code ffprobe reports, legacy bibliographic variants, and the
// full name occasionally found in container metadata.
type tag struct {
	iso1    string
	name    string
	aliases []string
}

var catalog = []tag{
	{"en", "English", []string{"eng", "english"}},
	{"es", "Spanish", []string{"spa", "spanish"}},
	{"fr", "French", []string{"fra", "fre", "french"}},
	{"de", "German", []string{"deu", "ger", "german"}},
	{"it", "Italian", []string{"ita", "italian"}},
	{"pt", "Portuguese", []string{"por", "portuguese"}},
	{"nl", "Dutch", []string{"nld", "dut", "dutch"}},
	{"pl", "Polish", []string{"pol", "polish"}},
	{"ru", "Russian", []string{"rus", "russian"}},
	{"ar", "Arabic", []string{"ara", "arabic"}},
	{"hi", "Hindi", []string{"hin", "hindi"}},
	{"zh", "Chinese", []string{"zho", "chi", "chinese"}},
	{"ja", "Japanese", []string{"jpn", "japanese"}},
	{"ko", "Korean", []string{"kor", "korean"}},
	{"sv", "Swedish", []string{"swe", "swedish"}},
	{"da", "Danish", []string{"dan", "danish"}},
	{"no", "Norwegian", []string{"nor", "norwegian"}},
	{"fi", "Finnish", []string{"fin", "finnish"}},
}

var index = func() map[string]tag {
	m := make(map[string]tag, len(catalog)*3)
	for _, t := range catalog {
		m[t.iso1] = t
		for _, alias := range t.aliases {
			m[alias] = t
		}
	}
	return m
}()

// Normalize maps a language identifier to its ISO 639-1 code. Recognized
// three-letter codes and names collapse to the two-letter form; an unknown
// two-letter code passes through unchanged so uncatalogued languages are not
// blocked. Anything else normalizes to the empty string.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if t, ok := index[code]; ok {
		return t.iso1
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns the English name for a recognized code. Unrecognized
// codes come back uppercased so they remain visible in rendered reports.
func DisplayName(code string) string {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return "Unknown"
	}
	if t, ok := index[trimmed]; ok {
		return t.name
	}
	return strings.ToUpper(trimmed)
}

// tagKeys lists the stream tag spellings seen across containers, in lookup
// order. Matroska writes lowercase, MP4 tooling tends to uppercase.
var tagKeys = []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"}

// FromTags pulls the language out of ffprobe stream tags and normalizes it.
// A recognized value collapses to ISO 639-1; an unrecognized but present one
// is returned trimmed and lowercased. Returns "" when no tag carries a value.
func FromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	for _, key := range tagKeys {
		value, ok := tags[key]
		if !ok {
			continue
		}
		// Stream tags copied out of some containers carry NUL padding.
		value = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "\x00", "")))
		if value == "" {
			continue
		}
		if normalized := Normalize(value); normalized != "" {
			return normalized
		}
		return value
	}
	return ""
}
