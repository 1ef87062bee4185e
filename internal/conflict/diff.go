package conflict

import (
	"strings"
	"unicode"

	"miniups-gateway/internal/domain"
)

// Diff lists the fields whose values differ between ours and server. Our
// fields come first in their original order, then fields only the server
// has. labels overrides display names.
func Diff(ours, server *domain.Fields, labels map[string]string) []domain.FieldDiff {
	names := ours.Keys()
	for _, name := range server.Keys() {
		if !ours.Has(name) {
			names = append(names, name)
		}
	}

	diffs := make([]domain.FieldDiff, 0, len(names))
	for _, name := range names {
		ourRaw := ours.Value(name)
		serverRaw := server.Value(name)

		ourVal := domain.ValueOf(ourRaw)
		serverVal := domain.ValueOf(serverRaw)
		if ourVal.Equal(serverVal) {
			continue
		}

		kind := ourVal.Kind
		if kind == domain.KindNull {
			kind = serverVal.Kind
		}

		diffs = append(diffs, domain.FieldDiff{
			FieldName:   name,
			DisplayName: DisplayName(name, labels),
			Type:        kind,
			OurValue:    ourRaw,
			ServerValue: serverRaw,
			CanMerge:    kind == domain.KindText || kind == domain.KindNumber,
		})
	}
	return diffs
}

func DisplayName(field string, labels map[string]string) string {
	if label, ok := labels[field]; ok && label != "" {
		return label
	}
	return Humanize(field)
}

// Humanize turns camelCase and snake_case identifiers into title-cased
// words: "estimatedDelivery" and "estimated_delivery" both become
// "Estimated Delivery".
func Humanize(field string) string {
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(field)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
