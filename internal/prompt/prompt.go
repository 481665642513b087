// Package prompt renders the instruction template sent to the generator.
//
// Rule sets are versioned. Changing the wording of a rule changes how the model
// answers and refuses, so every rule set is pinned by a golden test and a
// wording change ships as a new version rather than an edit.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// RuleSet is a named, versioned instruction template.
type RuleSet struct {
	Version  string
	Rules    []string
	Template string
}

// Input is the data rendered into a template.
type Input struct {
	Rules    []string
	Context  string
	Question string
}

const (
	// GuardrailV2 is the default rule set.
	GuardrailV2 = "guardrail-v2"
	// BasicV1 is the original single-instruction template.
	BasicV1 = "basic-v1"
)

var guardrailRules = []string{
	"Use only the information in the provided context. Do not rely on outside knowledge.",
	"If the answer is clearly present in the context, answer directly.",
	"If the answer is only partially present, answer with what the context supports and state the limits of that scope.",
	"Say that the information is not specified in the documents only when it is completely absent from the context.",
	"Never assert guarantees or commitments that the context does not explicitly state.",
	"When the context describes a mechanism or process, describe that process instead of asserting a guarantee.",
	"If the context contains an enumerated or bulleted list relevant to the question, reproduce the list verbatim.",
	"If several passages each hold part of the answer, synthesize them into one answer instead of refusing.",
}

const guardrailTemplate = `You are an assistant answering questions about a private document collection.
Follow these rules:
{{range $i, $rule := .Rules}}{{inc $i}}. {{$rule}}
{{end}}
Context:
{{.Context}}

Question: {{.Question}}

Answer:`

const basicTemplate = `Answer the question based only on the following context:
{{.Context}}

Question: {{.Question}}
`

var ruleSets = map[string]RuleSet{
	GuardrailV2: {Version: GuardrailV2, Rules: guardrailRules, Template: guardrailTemplate},
	BasicV1:     {Version: BasicV1, Template: basicTemplate},
}

// Lookup returns a registered rule set by version.
func Lookup(version string) (RuleSet, error) {
	if version == "" {
		version = GuardrailV2
	}
	rs, ok := ruleSets[version]
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rule set %q (available: %s)", version, strings.Join(Versions(), ", "))
	}
	rs.Rules = append([]string(nil), rs.Rules...)
	return rs, nil
}

// Versions lists registered rule set versions in sorted order.
func Versions() []string {
	out := make([]string, 0, len(ruleSets))
	for v := range ruleSets {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// WithTemplate returns a copy of rs rendered through a custom template.
func (rs RuleSet) WithTemplate(text string) RuleSet {
	rs.Template = text
	rs.Version += "+custom"
	return rs
}

// Assembler renders the prompt for a context and question.
type Assembler interface {
	Assemble(context, question string) (string, error)
}

// TemplateAssembler renders a RuleSet with text/template.
type TemplateAssembler struct {
	rules RuleSet
	tmpl  *template.Template
}

// NewAssembler parses the rule set template.
func NewAssembler(rules RuleSet) (*TemplateAssembler, error) {
	tmpl, err := template.New(rules.Version).
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Option("missingkey=error").
		Parse(rules.Template)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", rules.Version, err)
	}
	return &TemplateAssembler{rules: rules, tmpl: tmpl}, nil
}

// Version returns the rule set version in use.
func (a *TemplateAssembler) Version() string { return a.rules.Version }

// Assemble renders the template.
func (a *TemplateAssembler) Assemble(context, question string) (string, error) {
	var b strings.Builder
	in := Input{Rules: a.rules.Rules, Context: context, Question: question}
	if err := a.tmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", a.rules.Version, err)
	}
	return b.String(), nil
}
