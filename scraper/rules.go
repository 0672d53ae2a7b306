package scraper

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v2"
)

// Field names a RawRecord subfield extracted by the layout strategy.
type Field string

const (
	FieldTitle        Field = "title"
	FieldPrice        Field = "price"
	FieldLocation     Field = "location"
	FieldPropertyType Field = "property_type"
	FieldBedrooms     Field = "bedrooms"
	FieldBathrooms    Field = "bathrooms"
	FieldArea         Field = "area"
	FieldAgent        Field = "agent"
	FieldDeveloper    Field = "developer"
	FieldLink         Field = "link"
	FieldDescription  Field = "description"
	FieldListed       Field = "listed"
)

// Fields lists every layout field in extraction order.
var Fields = []Field{
	FieldTitle, FieldPrice, FieldLocation, FieldPropertyType,
	FieldBedrooms, FieldBathrooms, FieldArea, FieldAgent,
	FieldDeveloper, FieldLink, FieldDescription, FieldListed,
}

// Rule extracts one value from inside a card. An empty Selector targets the
// card itself. Attr picks an attribute instead of the text; Pattern, when
// set, must match and its first group (or the whole match) is the value.
type Rule struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

// Apply returns the first non-empty value the rule yields within card.
// A Pattern that was never compiled matches nothing.
func (r *Rule) Apply(card *goquery.Selection) (string, bool) {
	if r.Pattern != "" && r.re == nil {
		return "", false
	}
	nodes := card
	if r.Selector != "" {
		nodes = card.Find(r.Selector)
	}

	var value string
	var found bool
	nodes.EachWithBreak(func(_ int, n *goquery.Selection) bool {
		var v string
		if r.Attr != "" {
			v, _ = n.Attr(r.Attr)
		} else {
			v = spacedText(n)
		}
		v = strings.TrimSpace(v)
		if v != "" && r.re != nil {
			m := r.re.FindStringSubmatch(v)
			switch {
			case m == nil:
				v = ""
			case len(m) > 1:
				v = strings.TrimSpace(m[1])
			default:
				v = strings.TrimSpace(m[0])
			}
		}
		if v == "" {
			return true
		}
		value, found = v, true
		return false
	})
	return value, found
}

// spacedText returns the text of sel with a single space between text nodes,
// so adjacent elements such as <span>1,900,000</span><span>3 Beds</span>
// never run together. Script and style bodies are skipped.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				parts = append(parts, c.Text())
			case "script", "style", "#comment":
			default:
				walk(c)
			}
		})
	}
	sel.Each(func(_ int, n *goquery.Selection) { walk(n) })
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Chain is an ordered list of rules; the first one that yields a value wins.
type Chain []Rule

// Extract runs the chain against card. Nil means every rule failed.
func (c Chain) Extract(card *goquery.Selection) *string {
	for i := range c {
		if v, ok := c[i].Apply(card); ok {
			return &v
		}
	}
	return nil
}

// RuleSet holds the prioritized card patterns and per-field chains used by
// the layout strategy.
type RuleSet struct {
	Cards  []string        `yaml:"cards"`
	Fields map[Field]Chain `yaml:"fields"`
}

// Compile prepares the rule patterns. It must be called before use.
func (rs *RuleSet) Compile() error {
	if len(rs.Cards) == 0 {
		return fmt.Errorf("rules: no card selectors")
	}
	for field, chain := range rs.Fields {
		for i := range chain {
			if chain[i].Pattern == "" {
				continue
			}
			re, err := regexp.Compile(chain[i].Pattern)
			if err != nil {
				return fmt.Errorf("rules: %s[%d] pattern: %w", field, i, err)
			}
			chain[i].re = re
		}
	}
	return nil
}

// Clone returns a deep copy so overrides never mutate the defaults.
func (rs RuleSet) Clone() RuleSet {
	out := RuleSet{
		Cards:  append([]string(nil), rs.Cards...),
		Fields: make(map[Field]Chain, len(rs.Fields)),
	}
	for f, c := range rs.Fields {
		out.Fields[f] = append(Chain(nil), c...)
	}
	return out
}

// LoadRuleSet reads YAML overrides from path on top of base. Card patterns in
// the file replace the base list; each field present replaces that field's
// chain. The result is compiled.
func LoadRuleSet(path string, base RuleSet) (RuleSet, error) {
	out := base.Clone()
	if path == "" {
		return out, out.Compile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("rules: read %q: %w", path, err)
	}
	return mergeRuleYAML(data, out)
}

func mergeRuleYAML(data []byte, out RuleSet) (RuleSet, error) {
	var override RuleSet
	if err := yaml.UnmarshalStrict(data, &override); err != nil {
		return RuleSet{}, fmt.Errorf("rules: parse: %w", err)
	}
	if len(override.Cards) > 0 {
		out.Cards = override.Cards
	}
	for f, c := range override.Fields {
		if !knownField(f) {
			return RuleSet{}, fmt.Errorf("rules: unknown field %q", f)
		}
		out.Fields[f] = c
	}
	if err := out.Compile(); err != nil {
		return RuleSet{}, err
	}
	return out, nil
}

func knownField(f Field) bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}
