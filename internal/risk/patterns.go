package risk

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// maxPatternsFileSize caps pattern file reads.
const maxPatternsFileSize = 1 << 20

// patternSpec is the YAML shape of one pattern entry.
type patternSpec struct {
	RiskType       string   `yaml:"risk_type"`
	Severity       string   `yaml:"severity"`
	DocTypes       []string `yaml:"doc_types"`
	Keywords       []string `yaml:"keywords"`
	Regex          string   `yaml:"regex"`
	Description    string   `yaml:"description"`
	Recommendation string   `yaml:"recommendation"`
}

type patternsFile struct {
	Patterns []patternSpec `yaml:"patterns"`
}

// pattern is a compiled table entry.
type pattern struct {
	riskType       string
	severity       document.Severity
	docTypes       map[document.Type]bool // nil means all types
	keywords       []string               // lowercased
	regex          *regexp.Regexp
	description    string
	recommendation string
}

// appliesTo reports whether the pattern covers the document type. Unknown
// documents are scanned against every table; a broad scan beats missing a
// risk because classification failed.
func (p *pattern) appliesTo(t document.Type) bool {
	if p.docTypes == nil || t == document.TypeUnknown {
		return true
	}
	return p.docTypes[t]
}

// matches reports whether the pattern fires on the clause text. The text
// must already be lowercased.
func (p *pattern) matches(lowerText string) bool {
	for _, kw := range p.keywords {
		if strings.Contains(lowerText, kw) {
			return true
		}
	}
	return p.regex != nil && p.regex.MatchString(lowerText)
}

// table is an immutable compiled pattern set, swapped atomically on
// reload.
type table struct {
	patterns  []*pattern
	riskTypes []string
}

func compileTable(raw []byte) (*table, error) {
	var pf patternsFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}
	if len(pf.Patterns) == 0 {
		return nil, fmt.Errorf("patterns file defines no patterns")
	}

	t := &table{}
	seenTypes := map[string]bool{}
	for i, spec := range pf.Patterns {
		if spec.RiskType == "" {
			return nil, fmt.Errorf("pattern %d: missing risk_type", i)
		}
		sev, ok := document.ParseRiskLevel(spec.Severity)
		if !ok {
			return nil, fmt.Errorf("pattern %d (%s): invalid severity %q", i, spec.RiskType, spec.Severity)
		}
		if len(spec.Keywords) == 0 && spec.Regex == "" {
			return nil, fmt.Errorf("pattern %d (%s): needs keywords or regex", i, spec.RiskType)
		}

		p := &pattern{
			riskType:       spec.RiskType,
			severity:       sev,
			description:    spec.Description,
			recommendation: spec.Recommendation,
		}
		for _, kw := range spec.Keywords {
			p.keywords = append(p.keywords, strings.ToLower(kw))
		}
		if spec.Regex != "" {
			re, err := regexp.Compile("(?i)" + spec.Regex)
			if err != nil {
				return nil, fmt.Errorf("pattern %d (%s): bad regex: %w", i, spec.RiskType, err)
			}
			p.regex = re
		}
		if len(spec.DocTypes) > 0 {
			p.docTypes = map[document.Type]bool{}
			for _, dt := range spec.DocTypes {
				parsed := document.ParseType(dt)
				if parsed == document.TypeUnknown {
					return nil, fmt.Errorf("pattern %d (%s): unknown doc type %q", i, spec.RiskType, dt)
				}
				p.docTypes[parsed] = true
			}
		}

		t.patterns = append(t.patterns, p)
		if !seenTypes[spec.RiskType] {
			seenTypes[spec.RiskType] = true
			t.riskTypes = append(t.riskTypes, spec.RiskType)
		}
	}
	return t, nil
}

func loadTableFile(path string) (*table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat patterns file: %w", err)
	}
	if info.Size() > maxPatternsFileSize {
		return nil, fmt.Errorf("patterns file %s exceeds %d bytes", path, maxPatternsFileSize)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	return compileTable(raw)
}
