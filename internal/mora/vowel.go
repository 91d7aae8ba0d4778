package mora

import "strings"

// CanDevoice reports whether v is a plain vowel that has a devoiced form.
func CanDevoice(v string) bool {
	switch v {
	case "a", "i", "u", "e", "o":
		return true
	}
	return false
}

// IsDevoiced reports whether v is a devoiced (uppercase) vowel.
func IsDevoiced(v string) bool {
	switch v {
	case "A", "I", "U", "E", "O":
		return true
	}
	return false
}

// Devoice returns the devoiced form of v, or v when it has none.
func Devoice(v string) string {
	if CanDevoice(v) {
		return strings.ToUpper(v)
	}
	return v
}

// Voice returns the voiced form of a devoiced vowel, or v otherwise.
func Voice(v string) string {
	if IsDevoiced(v) {
		return strings.ToLower(v)
	}
	return v
}

// IsVowel reports whether v may appear as the vowel of a mora.
func IsVowel(v string) bool {
	return CanDevoice(v) || IsDevoiced(v) || v == VowelN || v == VowelCL || v == VowelPause
}

// IsVoiceless reports whether consonant c is produced without voicing. Empty
// consonants are voiced.
func IsVoiceless(c string) bool {
	switch c {
	case "k", "ky", "kw", "s", "sh", "t", "ty", "ch", "ts", "h", "hy", "f", "p", "py":
		return true
	}
	return false
}
