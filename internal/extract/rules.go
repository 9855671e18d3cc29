package extract

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// Rule is one pattern rule matching a canonical guidance phrasing.
// Vulnerability rules match prohibition/negation language; OFC rules match
// obligation/advisory/conditional language.
type Rule struct {
	Name       string     `yaml:"name"`
	Kind       model.Kind `yaml:"kind"`
	Pattern    string     `yaml:"pattern"`
	Confidence float64    `yaml:"confidence"`

	re *regexp.Regexp
}

// builtinRules are the canonical phrasings observed across physical
// security guidance documents. Vulnerability rules are evaluated before
// OFC rules within a sentence, so "shall not" never falls through to the
// plain "shall" rule.
var builtinRules = []Rule{
	// Prohibition / negation → vulnerability.
	{Name: "prohibition", Kind: model.KindVulnerability, Pattern: `(?i)\b(?:shall not|must not|may not|should not)\b`, Confidence: 0.85},
	{Name: "deficiency", Kind: model.KindVulnerability, Pattern: `(?i)\b(?:lack of|absence of|failure to|no provision for)\b`, Confidence: 0.80},
	{Name: "inadequacy", Kind: model.KindVulnerability, Pattern: `(?i)\b(?:inadequate|insufficient|unprotected|unsecured|vulnerable to)\b`, Confidence: 0.75},

	// Obligation / advisory / conditional → OFC.
	{Name: "obligation", Kind: model.KindOFC, Pattern: `(?i)\b(?:shall|must|is required to)\b`, Confidence: 0.80},
	{Name: "advisory", Kind: model.KindOFC, Pattern: `(?i)\b(?:should|consider|is recommended|recommend(?:s|ed)?)\b`, Confidence: 0.75},
	{Name: "conditional", Kind: model.KindOFC, Pattern: `(?i)\bwhere\b.{0,80}\b(?:install|provide|locate|use|apply)\b`, Confidence: 0.70},
}

// BuiltinRules returns compiled copies of the built-in rule set.
func BuiltinRules() ([]Rule, error) {
	return compileRules(builtinRules)
}

// LoadRuleFile reads additional rules from a YAML file and appends them to
// the built-in set. Deployments use this to extend phrasing coverage
// without a rebuild.
func LoadRuleFile(path string) ([]Rule, error) {
	base, err := BuiltinRules()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read rule file %s", path)
	}

	var extra []Rule
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrapf(err, "extract: parse rule file %s", path)
	}

	compiled, err := compileRules(extra)
	if err != nil {
		return nil, err
	}
	return append(base, compiled...), nil
}

func compileRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile rule %q", r.Name)
		}
		if r.Kind != model.KindVulnerability && r.Kind != model.KindOFC {
			return nil, eris.Errorf("extract: rule %q has unknown kind %q", r.Name, r.Kind)
		}
		r.re = re
		out[i] = r
	}
	return out, nil
}
