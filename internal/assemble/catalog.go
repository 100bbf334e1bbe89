package assemble

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
)

// CatalogAsset is a user-supplied asset the assembler may bind scenes to.
type CatalogAsset struct {
	ID          string             `json:"id" yaml:"id"`
	Kind        manifest.AssetKind `json:"kind,omitempty" yaml:"kind"`
	URL         string             `json:"url,omitempty" yaml:"url"`
	Description string             `json:"description" yaml:"description"`
}

func (c CatalogAsset) asset() manifest.Asset {
	kind := c.Kind
	if kind == "" {
		kind = manifest.KindImage
	}
	return manifest.Asset{
		ID:          c.ID,
		Kind:        kind,
		Source:      manifest.SourceUser,
		Status:      manifest.StatusReady,
		URL:         c.URL,
		Description: c.Description,
	}
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"this": true, "that": true, "our": true, "your": true, "shot": true, "scene": true,
	"image": true, "photo": true, "picture": true, "showing": true, "shows": true,
}

type catalogIndex struct {
	entries []CatalogAsset
	tokens  []map[string]bool
}

func newCatalogIndex(catalog []CatalogAsset) *catalogIndex {
	idx := &catalogIndex{}
	for i, c := range catalog {
		if c.ID == "" {
			c.ID = fmt.Sprintf("user_asset_%03d", i+1)
		}
		idx.entries = append(idx.entries, c)
		idx.tokens = append(idx.tokens, tokenSet(c.Description))
	}
	return idx
}

// match returns the catalog entry sharing the most tokens with anchor. Ties go
// to the earlier entry.
func (idx *catalogIndex) match(anchor string) (CatalogAsset, bool) {
	want := tokenSet(anchor)
	if len(want) == 0 {
		return CatalogAsset{}, false
	}
	best, bestScore := -1, 0
	for i, have := range idx.tokens {
		score := 0
		for tok := range want {
			if have[tok] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return CatalogAsset{}, false
	}
	return idx.entries[best], true
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		out[strings.TrimSuffix(word, "s")] = true
	}
	return out
}
