// Package mountplan parses and validates the mount plan: the tree of
// configuration a Session is constructed from (§3, §6). Parsing follows
// the teacher's internal/config.Load — os.ExpandEnv substitution before
// yaml.v3 decoding, then an explicit validation pass collecting every
// issue rather than stopping at the first.
package mountplan

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/microsoft/amplifier-core/internal/kernelerrors"
)

// ModuleRef is one `{module, config}` entry in an ordered mount list.
type ModuleRef struct {
	Module string         `yaml:"module"`
	Config map[string]any `yaml:"config"`
}

// Plan is the parsed mount plan. Field names map onto spec.md §3's
// recognized top-level keys via yaml tags on the nested Session/Context
// structs below.
type Plan struct {
	Session   SessionRefs `yaml:"session"`
	Context   ContextOpts `yaml:"context"`
	Providers []ModuleRef `yaml:"providers"`
	Tools     []ModuleRef `yaml:"tools"`
	Agents    []ModuleRef `yaml:"agents"`
	Hooks     []ModuleRef `yaml:"hooks"`
}

// SessionRefs carries the two required singleton module identifiers.
type SessionRefs struct {
	Orchestrator string `yaml:"orchestrator"`
	Context      string `yaml:"context"`
}

// ContextOpts carries the optional free-form config handed to the
// mounted context module.
type ContextOpts struct {
	Config map[string]any `yaml:"config"`
}

// Parse decodes raw YAML bytes into a Plan, substituting `${ENV}`
// placeholders from the process environment the same way the teacher's
// config.Load does (os.ExpandEnv over the raw document before decoding),
// then validates it.
func Parse(data []byte) (*Plan, error) {
	expanded := os.ExpandEnv(string(data))

	var plan Plan
	if err := yaml.Unmarshal([]byte(expanded), &plan); err != nil {
		return nil, kernelerrors.New(kernelerrors.KindConfigInvalid, "mountplan.Parse", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks the required-keys table from spec.md §3: both session
// module identifiers present, and at least one provider. It collects every
// issue instead of returning on the first, mirroring the teacher's
// validateConfig/ConfigValidationError shape.
func (p *Plan) Validate() error {
	var issues []string

	if strings.TrimSpace(p.Session.Orchestrator) == "" {
		issues = append(issues, "session.orchestrator is required")
	}
	if strings.TrimSpace(p.Session.Context) == "" {
		issues = append(issues, "session.context is required")
	}
	if len(p.Providers) == 0 {
		issues = append(issues, "providers must contain at least one entry")
	}
	for i, ref := range p.Providers {
		if strings.TrimSpace(ref.Module) == "" {
			issues = append(issues, fmt.Sprintf("providers[%d].module is required", i))
		}
	}
	for i, ref := range p.Tools {
		if strings.TrimSpace(ref.Module) == "" {
			issues = append(issues, fmt.Sprintf("tools[%d].module is required", i))
		}
	}
	for i, ref := range p.Agents {
		if strings.TrimSpace(ref.Module) == "" {
			issues = append(issues, fmt.Sprintf("agents[%d].module is required", i))
		}
	}
	for i, ref := range p.Hooks {
		if strings.TrimSpace(ref.Module) == "" {
			issues = append(issues, fmt.Sprintf("hooks[%d].module is required", i))
		}
	}

	if len(issues) > 0 {
		return kernelerrors.New(kernelerrors.KindConfigInvalid, "mountplan.Validate",
			&ValidationError{Issues: issues})
	}
	return nil
}

// ValidationError collects every mount-plan issue found during Validate,
// mirroring the teacher's ConfigValidationError.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "mount plan invalid:\n- " + strings.Join(e.Issues, "\n- ")
}

// Merge shallow-merges override on top of p, returning a new Plan. Used by
// Session.fork to derive a child's mount plan per spec.md §4.5: each
// top-level field in override replaces the corresponding field in p only
// when set: strings when non-empty, slices and the context config map when
// non-nil (an empty non-nil slice clears the field). Replacement is
// wholesale, not a deep merge.
func (p *Plan) Merge(override *Plan) *Plan {
	if override == nil {
		copy := *p
		return &copy
	}

	merged := *p

	if override.Session.Orchestrator != "" {
		merged.Session.Orchestrator = override.Session.Orchestrator
	}
	if override.Session.Context != "" {
		merged.Session.Context = override.Session.Context
	}
	if override.Context.Config != nil {
		merged.Context.Config = override.Context.Config
	}
	if override.Providers != nil {
		merged.Providers = override.Providers
	}
	if override.Tools != nil {
		merged.Tools = override.Tools
	}
	if override.Agents != nil {
		merged.Agents = override.Agents
	}
	if override.Hooks != nil {
		merged.Hooks = override.Hooks
	}

	return &merged
}
