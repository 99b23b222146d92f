// Package textnorm turns an incident into the single document string that is
// embedded. The field order is part of the contract: it must match the order
// used when the clustering model was trained.
package textnorm

import (
	"fmt"
	"strings"

	"github.com/Manonp59/prbmg/pkg/models"
	"golang.org/x/text/unicode/norm"
)

// Field is one incident field that contributes to the document.
type Field int

const (
	FieldDescription Field = iota
	FieldCategory
	FieldLocation
	FieldCI
)

func (f Field) String() string {
	switch f {
	case FieldDescription:
		return "description"
	case FieldCategory:
		return "category_full"
	case FieldLocation:
		return "location_full"
	case FieldCI:
		return "ci_name"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// DefaultOrder is description, category, location, configuration item.
var DefaultOrder = []Field{FieldDescription, FieldCategory, FieldLocation, FieldCI}

var labels = map[Field]string{
	FieldCategory: "Category (Full):",
	FieldLocation: "Location:",
	FieldCI:       "CI Name:",
}

// stripped holds every rune removed from the document: ASCII punctuation
// plus typographic quotes, guillemets and the ellipsis.
var stripped = func() map[rune]bool {
	set := map[rune]bool{}
	for _, r := range "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~" + "‘’‚‛“”„‟«»‹›…" {
		set[r] = true
	}
	return set
}()

type Normalizer struct {
	order []Field
}

// Default returns a Normalizer using DefaultOrder.
func Default() *Normalizer {
	return &Normalizer{order: DefaultOrder}
}

// New returns a Normalizer with a custom order. Every field must appear exactly once.
func New(order ...Field) (*Normalizer, error) {
	if len(order) != len(DefaultOrder) {
		return nil, fmt.Errorf("field order must list %d fields, got %d", len(DefaultOrder), len(order))
	}
	seen := map[Field]bool{}
	for _, f := range order {
		if _, known := labels[f]; !known && f != FieldDescription {
			return nil, fmt.Errorf("unknown field %s", f)
		}
		if seen[f] {
			return nil, fmt.Errorf("field %s listed twice", f)
		}
		seen[f] = true
	}
	return &Normalizer{order: append([]Field(nil), order...)}, nil
}

// Order returns a copy of the field order.
func (n *Normalizer) Order() []Field {
	return append([]Field(nil), n.order...)
}

// Normalize builds the document for req. Identical input gives
// byte-identical output.
func (n *Normalizer) Normalize(req models.PredictionRequest) string {
	parts := make([]string, 0, len(n.order))
	for _, f := range n.order {
		value := strings.TrimSpace(fieldValue(req, f))
		if label, ok := labels[f]; ok {
			value = label + "\n" + value
		}
		parts = append(parts, value)
	}
	return Clean(strings.Join(parts, "\n\n"))
}

// Clean applies NFC normalisation and removes the punctuation class.
func Clean(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !stripped[r] {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fieldValue(req models.PredictionRequest, f Field) string {
	switch f {
	case FieldDescription:
		return req.Description
	case FieldCategory:
		return req.CategoryFull
	case FieldLocation:
		return req.LocationFull
	case FieldCI:
		return req.CIName
	}
	return ""
}
