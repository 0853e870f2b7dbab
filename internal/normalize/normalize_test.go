// ABOUTME: Tests for canonical key derivation.
// ABOUTME: Covers case folding, NFC composition, whitespace collapsing, and idempotence.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Lowercases(t *testing.T) {
	assert.Equal(t, Key("hello world"), Key("Hello World"))
	assert.Equal(t, Key("hello world"), Key("HELLO WORLD"))
}

func TestKey_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "hello world", Key("hello   world"))
	assert.Equal(t, "hello world", Key("  hello\tworld  "))
	assert.Equal(t, "hello world", Key("hello\nworld"))
}

func TestKey_UnicodeComposition(t *testing.T) {
	// "é" precomposed (U+00E9) vs decomposed (U+0065 U+0301)
	assert.Equal(t, Key("café"), Key("café"))
}

func TestKey_CaseFold_NonASCII(t *testing.T) {
	// German sharp s folds to "ss"
	assert.Equal(t, Key("strasse"), Key("STRASSE"))
	assert.Equal(t, Key("straße"), Key("STRAßE"))
}

func TestKey_Empty(t *testing.T) {
	assert.Equal(t, "", Key(""))
	// Whitespace-only messages pool with the empty key
	assert.Equal(t, "", Key("   \t\n  "))
}

func TestKey_Idempotent(t *testing.T) {
	inputs := []string{
		"Hello   World",
		"  MIXED case\twith\nwhitespace ",
		"café au lait",
		"",
	}
	for _, in := range inputs {
		once := Key(in)
		assert.Equal(t, once, Key(once), "key for %q should be stable", in)
	}
}

func TestKey_DistinctContentStaysDistinct(t *testing.T) {
	assert.NotEqual(t, Key("hello world"), Key("hello worlds"))
	assert.NotEqual(t, Key("hello world"), Key("helloworld"))
}
