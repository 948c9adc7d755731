package spec

import "strings"

const namePlaceholder = "${NAME}"

// newNameReplacer builds the single-pair replacer used to substitute
// ${NAME} with the owning source's key. Grounded on
// pkg/config/substitution.go's replacerFromMap/strings.Replacer idiom,
// narrowed here to the one fixed placeholder the base spec defines.
func newNameReplacer(key SourceKey) *strings.Replacer {
	return strings.NewReplacer(namePlaceholder, key)
}
