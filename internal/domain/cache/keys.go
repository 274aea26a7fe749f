package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key is an opaque content fingerprint. Equal inputs always map to equal
// keys; keys are never reversed to recover content.
type Key string

// Namespaces segregate stage results sharing one backend.
const (
	NamespaceTranscription = "transcription"
	NamespaceTranslation   = "translation"
	NamespaceSynthesis     = "synthesis"
)

// KeyForAudio fingerprints raw audio bytes.
func KeyForAudio(data []byte) Key {
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:]))
}

// KeyForText fingerprints a text together with its language pair.
func KeyForText(text, sourceLang, targetLang string) Key {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", text, sourceLang, targetLang)))
	return Key(hex.EncodeToString(sum[:]))
}

// Namespaced renders the full backend key for a stage namespace.
func (k Key) Namespaced(ns string) string {
	return ns + ":" + string(k)
}
