// Package voices holds the set of known synthesis voices across providers
// and resolves the best voice for a language.
package voices

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// ProviderKind identifies which synthesis backend owns a voice.
type ProviderKind int

const (
	// OnDevice is the local OS speech engine.
	OnDevice ProviderKind = iota
	// Cloud is the network neural-voice service.
	Cloud
)

// String returns the string representation of the provider kind.
func (k ProviderKind) String() string {
	switch k {
	case OnDevice:
		return "on-device"
	case Cloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// Voice identifies a single synthesis option. Voices are immutable once
// reported by a provider; the catalog is rebuilt wholesale on refresh.
type Voice struct {
	ID          string       // Opaque provider-scoped identifier
	Provider    ProviderKind // Backend that owns the voice
	Language    string       // BCP-47-like tag, e.g. "en-US"
	DisplayName string       // Human-readable name
	IsLocal     bool         // OnDevice only: fully offline voice
}

// Catalog is the merged set of known voices, keyed by provider. Refresh
// replaces a provider's entries wholesale; partial patching by id is
// deliberately not supported, since a provider's voice list can change
// shape between reports and stale entries would accumulate.
type Catalog struct {
	mu         sync.RWMutex
	byProvider map[ProviderKind][]Voice

	// Session-scoped auto-selection memo, keyed by base language. A voice
	// picked once for a language is reused for the rest of the session.
	selected map[string]Voice
}

// NewCatalog creates an empty voice catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byProvider: make(map[ProviderKind][]Voice),
		selected:   make(map[string]Voice),
	}
}

// Refresh replaces all of a provider's voices with the given list.
func (c *Catalog) Refresh(kind ProviderKind, voices []Voice) {
	replacement := make([]Voice, len(voices))
	copy(replacement, voices)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byProvider[kind] = replacement

	// Drop memoized selections that no longer exist anywhere.
	for lang, v := range c.selected {
		if v.Provider != kind {
			continue
		}
		if _, ok := c.findByIDLocked(v.ID); !ok {
			delete(c.selected, lang)
		}
	}
}

// All returns every known voice, cloud voices first, in a stable order.
func (c *Catalog) All() []Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Voice, 0, len(c.byProvider[Cloud])+len(c.byProvider[OnDevice]))
	out = append(out, c.byProvider[Cloud]...)
	out = append(out, c.byProvider[OnDevice]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider == Cloud
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ByID looks a voice up by its identifier across all providers.
func (c *Catalog) ByID(id string) (Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.findByIDLocked(id)
}

func (c *Catalog) findByIDLocked(id string) (Voice, bool) {
	for _, vs := range c.byProvider {
		for _, v := range vs {
			if v.ID == id {
				return v, true
			}
		}
	}
	return Voice{}, false
}

// BestFor resolves the preferred voice for a language tag. Order of
// preference: the session's memoized choice for the language, then the
// first cloud voice for the language, then the first on-device voice whose
// tag prefix-matches (local voices preferred). A false return is not an
// error: it signals "no coverage" and the caller is expected to surface
// that rather than substitute an unrelated-language voice.
func (c *Catalog) BestFor(tag string) (Voice, bool) {
	base := baseLang(tag)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.selected[base]; ok {
		return v, true
	}

	for _, v := range c.byProvider[Cloud] {
		if baseLang(v.Language) == base {
			c.selected[base] = v
			return v, true
		}
	}

	var fallback *Voice
	for i, v := range c.byProvider[OnDevice] {
		if !strings.HasPrefix(strings.ToLower(v.Language), base) {
			continue
		}
		if v.IsLocal {
			c.selected[base] = v
			return v, true
		}
		if fallback == nil {
			fallback = &c.byProvider[OnDevice][i]
		}
	}
	if fallback != nil {
		c.selected[base] = *fallback
		return *fallback, true
	}

	return Voice{}, false
}

// BestOnDevice resolves an on-device voice for a language tag, preferring
// fully offline voices. Used when a cloud synthesis attempt fails and the
// utterance should still be spoken locally.
func (c *Catalog) BestOnDevice(tag string) (Voice, bool) {
	base := baseLang(tag)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var fallback *Voice
	for i, v := range c.byProvider[OnDevice] {
		if !strings.HasPrefix(strings.ToLower(v.Language), base) {
			continue
		}
		if v.IsLocal {
			return v, true
		}
		if fallback == nil {
			fallback = &c.byProvider[OnDevice][i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Voice{}, false
}

// Search fuzzy-matches voices by display name, id and language.
func (c *Catalog) Search(query string) []Voice {
	all := c.All()
	if query == "" {
		return all
	}

	haystack := make([]string, len(all))
	for i, v := range all {
		haystack[i] = v.DisplayName + " " + v.ID + " " + v.Language
	}

	matches := fuzzy.Find(query, haystack)
	out := make([]Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}

// Len reports the total number of known voices.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, vs := range c.byProvider {
		n += len(vs)
	}
	return n
}

func baseLang(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}
