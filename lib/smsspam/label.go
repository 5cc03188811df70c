package smsspam

import (
	"fmt"
	"sort"
	"strings"
)

// Label is a class of sms message
type Label string

// enum of supported labels, canonical names sorted lexicographically define tie-breaking order
const (
	LabelFraud       Label = "fraud"
	LabelNormal      Label = "normal"
	LabelPromotional Label = "promotional"
)

// labelAliases maps source-equivalent tokens to canonical labels
var labelAliases = map[string]Label{
	"normal":      LabelNormal,
	"0":           LabelNormal,
	"fraud":       LabelFraud,
	"penipuan":    LabelFraud,
	"1":           LabelFraud,
	"promotional": LabelPromotional,
	"promosi":     LabelPromotional,
	"promo":       LabelPromotional,
	"2":           LabelPromotional,
}

// Labels returns all supported labels in canonical order
func Labels() []Label {
	return []Label{LabelFraud, LabelNormal, LabelPromotional}
}

// ParseLabel converts dataset label token to Label, case-insensitive
func ParseLabel(s string) (Label, error) {
	l, ok := labelAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown label %q", s)
	}
	return l, nil
}

// Validate checks if label is one of supported labels
func (l Label) Validate() error {
	switch l {
	case LabelFraud, LabelNormal, LabelPromotional:
		return nil
	}
	return fmt.Errorf("invalid label %q", string(l))
}

// Title returns human-readable indonesian title of the label
func (l Label) Title() string {
	switch l {
	case LabelFraud:
		return "PENIPUAN"
	case LabelPromotional:
		return "PROMOSI / IKLAN"
	case LabelNormal:
		return "NORMAL / AMAN"
	}
	return strings.ToUpper(string(l))
}

func (l Label) String() string { return string(l) }

// sortLabels sorts labels in canonical (lexicographic) order, in place
func sortLabels(ll []Label) {
	sort.Slice(ll, func(i, j int) bool { return ll[i] < ll[j] })
}
