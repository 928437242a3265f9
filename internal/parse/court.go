package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Kind says which attribute of a court a rule tags.
type Kind string

const (
	KindType     Kind = "type"
	KindFeature  Kind = "feature"
	KindLocation Kind = "location"
)

// Rule tags a court whose display name matches Pattern.
type Rule struct {
	Kind    Kind
	Pattern *regexp.Regexp
	Tag     string
}

// NewRule compiles a case-insensitive rule.
func NewRule(kind Kind, pattern, tag string) (Rule, error) {
	switch kind {
	case KindType, KindFeature, KindLocation:
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", kind)
	}
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile rule %q: %w", pattern, err)
	}
	return Rule{Kind: kind, Pattern: re, Tag: tag}, nil
}

func mustRule(kind Kind, pattern, tag string) Rule {
	r, err := NewRule(kind, pattern, tag)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultType is used when no type rule matches.
const DefaultType = "tennis"

// DefaultRules is evaluated top to bottom. Type and location take the first match; features
// collect every match, once each, in rule order.
var DefaultRules = []Rule{
	mustRule(KindType, `\bpickle\s*ball\b`, "pickleball"),
	mustRule(KindType, `\bpadel\b`, "padel"),
	mustRule(KindType, `\bplatform\b|\bpaddle\b`, "platform"),
	mustRule(KindType, `\bsquash\b`, "squash"),
	mustRule(KindType, `\btennis\b`, "tennis"),

	mustRule(KindFeature, `\bclay\b|\bhar-?tru\b`, "clay"),
	mustRule(KindFeature, `\bhard\b|\bacrylic\b`, "hard"),
	mustRule(KindFeature, `\bgrass\b`, "grass"),
	mustRule(KindFeature, `\bindoor\b|\bbubble\b`, "indoor"),
	mustRule(KindFeature, `\boutdoor\b`, "outdoor"),
	mustRule(KindFeature, `\blights?\b|\blit\b`, "lights"),
	mustRule(KindFeature, `\bstadium\b|\bshow\s*court\b`, "stadium"),
	mustRule(KindFeature, `\bbackboard\b|\bhitting\s*wall\b`, "backboard"),

	mustRule(KindLocation, `\bnorth\b`, "north"),
	mustRule(KindLocation, `\bsouth\b`, "south"),
	mustRule(KindLocation, `\beast\b`, "east"),
	mustRule(KindLocation, `\bwest\b`, "west"),
	mustRule(KindLocation, `\bupper\b`, "upper"),
	mustRule(KindLocation, `\blower\b`, "lower"),
	mustRule(KindLocation, `\bmain\b|\bclubhouse\b`, "main"),
}

// Tags holds the attributes derived from a court's display name.
type Tags struct {
	Type     string
	Features []string
	Location string
}

// Classifier derives Tags from display names with an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier puts extra ahead of DefaultRules so configured rules win.
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules))
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules...)
	return &Classifier{rules: rules}
}

// Classify tags a court display name such as "Court 3 - Har-Tru (Lights) North".
func (c *Classifier) Classify(name string) Tags {
	s := NormalizeName(name)

	var tags Tags
	seen := make(map[string]bool)
	for _, r := range c.rules {
		if !r.Pattern.MatchString(s) {
			continue
		}
		switch r.Kind {
		case KindType:
			if tags.Type == "" {
				tags.Type = r.Tag
			}
		case KindLocation:
			if tags.Location == "" {
				tags.Location = r.Tag
			}
		case KindFeature:
			if !seen[r.Tag] {
				seen[r.Tag] = true
				tags.Features = append(tags.Features, r.Tag)
			}
		}
	}
	if tags.Type == "" {
		tags.Type = DefaultType
	}
	return tags
}

// Classify uses the default rules.
func Classify(name string) Tags {
	return defaultClassifier.Classify(name)
}

var defaultClassifier = NewClassifier()

// NormalizeName collapses whitespace (including non-breaking spaces the platform emits) and
// trims the result.
func NormalizeName(raw string) string {
	s := strings.ReplaceAll(raw, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
