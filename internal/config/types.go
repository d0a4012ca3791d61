// Package config is the "config provider" spec.md §3/§6 describe: it
// reads on-disk YAML and Markdown+frontmatter SKILL.md files and
// produces the already-parsed registry.Collection the Registry consumes.
// The Registry itself stays ignorant of YAML, frontmatter, or the
// filesystem entirely, matching spec.md §3's framing of the config
// provider as an external collaborator reached only through §6.
//
// Grounded on core/config/manager.go for the YAML-unmarshal-into-struct
// shape (hot-reload's atomic *unsafe.Pointer* swap and OnChange watcher
// list are dropped — this is a single-shot load consumed once to build
// an immutable Registry, not a live-swapped config singleton) and on
// skills/skill.go + skills/loader.go for the SKILL.md frontmatter
// convention, adapted from a flat property bag to registry.Skill's
// richer schema/dimension/level shape.
package config

import "github.com/loomwork/loom/internal/registry"

// skillDoc is the YAML shape of one entry in skills.yaml, or the parsed
// frontmatter of one skills/<id>/SKILL.md. Field names are snake_case on
// the wire; registry.Skill has no yaml tags of its own; this package's
// doc types are the bridge between them.
type skillDoc struct {
	ID                    string             `yaml:"id"`
	Name                  string             `yaml:"name"`
	Description           string             `yaml:"description"`
	Dimensions            []string           `yaml:"dimensions"`
	Levels                map[int]string      `yaml:"levels"`
	Tools                 []string           `yaml:"tools"`
	Constraints           []string           `yaml:"constraints"`
	ExecutionCapabilities []string           `yaml:"execution_capabilities"`
	InputSchema           *schemaDoc         `yaml:"input_schema"`
	OutputSchema          *schemaDoc         `yaml:"output_schema"`
	Metadata              metadataDoc        `yaml:"metadata"`
	Type                  string             `yaml:"type"`
	Deterministic         bool               `yaml:"deterministic"`
	Testable              bool               `yaml:"testable"`
	SideEffects           []string           `yaml:"side_effects"`
}

type schemaDoc struct {
	Type                 string                `yaml:"type"`
	Properties           map[string]*schemaDoc `yaml:"properties"`
	Required             []string              `yaml:"required"`
	Items                *schemaDoc            `yaml:"items"`
	Enum                 []any                 `yaml:"enum"`
	Pattern              string                `yaml:"pattern"`
	AdditionalProperties *bool                 `yaml:"additional_properties"`
}

type metadataDoc struct {
	ExecutionMode string         `yaml:"execution_mode"`
	MCP           *mcpDoc        `yaml:"mcp"`
	TimeoutMS     int            `yaml:"timeout_ms"`
	InvokerType   string         `yaml:"invoker_type"`
	Extra         map[string]any `yaml:",inline"`
}

type mcpDoc struct {
	Action      string `yaml:"action"`
	Server      string `yaml:"server"`
	ResourceURI string `yaml:"resource_uri"`
	Tool        string `yaml:"tool"`
}

// roleDoc is the YAML shape of one entry in roles.yaml.
type roleDoc struct {
	ID              string              `yaml:"id"`
	Name            string              `yaml:"name"`
	Description     string              `yaml:"description"`
	RequiredSkills  []skillRequireDoc   `yaml:"required_skills"`
	Constraints     constraintsDoc      `yaml:"constraints"`
	ValidationRules []string            `yaml:"validation_rules"`
	Extends         string              `yaml:"extends"`
}

type skillRequireDoc struct {
	SkillID  string   `yaml:"skill_id"`
	MinLevel int      `yaml:"min_level"`
	Focus    []string `yaml:"focus"`
	BundleID string   `yaml:"bundle_id"`
}

type constraintsDoc struct {
	AllowedActions   []string `yaml:"allowed_actions"`
	ForbiddenActions []string `yaml:"forbidden_actions"`
}

// bundleDoc is the YAML shape of one entry in bundles.yaml.
type bundleDoc struct {
	ID           string            `yaml:"id"`
	Requirements []skillRequireDoc `yaml:"requirements"`
}

// workflowDoc is the YAML shape of workflow.yaml.
type workflowDoc struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Stages []stageDoc  `yaml:"stages"`
}

type stageDoc struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	RoleID         string            `yaml:"role_id"`
	RequiredSkills []skillRequireDoc `yaml:"required_skills"`
	Inputs         []string          `yaml:"inputs"`
	Outputs        []string          `yaml:"outputs"`
	DependsOn      []string          `yaml:"depends_on"`
	QualityGates   []gateDoc         `yaml:"quality_gates"`
	Parallelizable bool              `yaml:"parallelizable"`
	ExecutionMode  string            `yaml:"execution_mode"`
}

type gateDoc struct {
	ID         string         `yaml:"id"`
	Kind       string         `yaml:"kind"`
	Parameters map[string]any `yaml:"parameters"`
	Blocking   bool           `yaml:"blocking"`
}

func (d skillRequireDoc) toRegistry() registry.SkillRequirement {
	return registry.SkillRequirement{
		SkillID:  d.SkillID,
		MinLevel: d.MinLevel,
		Focus:    d.Focus,
		BundleID: d.BundleID,
	}
}

func toSkillRequirements(docs []skillRequireDoc) []registry.SkillRequirement {
	out := make([]registry.SkillRequirement, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRegistry())
	}
	return out
}

func (d *schemaDoc) toRegistry() *registry.Schema {
	if d == nil {
		return nil
	}
	props := make(map[string]*registry.Schema, len(d.Properties))
	for k, v := range d.Properties {
		props[k] = v.toRegistry()
	}
	return &registry.Schema{
		Type:                 d.Type,
		Properties:           props,
		Required:             d.Required,
		Items:                d.Items.toRegistry(),
		Enum:                 d.Enum,
		Pattern:              d.Pattern,
		AdditionalProperties: d.AdditionalProperties,
	}
}

func (d metadataDoc) toRegistry() registry.Metadata {
	var mcp *registry.MCPConfig
	if d.MCP != nil {
		mcp = &registry.MCPConfig{
			Action:      d.MCP.Action,
			Server:      d.MCP.Server,
			ResourceURI: d.MCP.ResourceURI,
			Tool:        d.MCP.Tool,
		}
	}
	return registry.Metadata{
		ExecutionMode: d.ExecutionMode,
		MCP:           mcp,
		TimeoutMS:     d.TimeoutMS,
		InvokerType:   d.InvokerType,
		Extra:         d.Extra,
	}
}

func (d skillDoc) toRegistry() registry.Skill {
	return registry.Skill{
		ID:                    d.ID,
		Name:                  d.Name,
		Description:           d.Description,
		Dimensions:            d.Dimensions,
		Levels:                d.Levels,
		Tools:                 d.Tools,
		Constraints:           d.Constraints,
		ExecutionCapabilities: d.ExecutionCapabilities,
		InputSchema:           d.InputSchema.toRegistry(),
		OutputSchema:          d.OutputSchema.toRegistry(),
		Metadata:              d.Metadata.toRegistry(),
		Type:                  registry.SkillType(d.Type),
		Deterministic:         d.Deterministic,
		Testable:              d.Testable,
		SideEffects:           d.SideEffects,
	}
}

func (d roleDoc) toRegistry() registry.Role {
	return registry.Role{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		RequiredSkills:  toSkillRequirements(d.RequiredSkills),
		Constraints: registry.Constraints{
			AllowedActions:   d.Constraints.AllowedActions,
			ForbiddenActions: d.Constraints.ForbiddenActions,
		},
		ValidationRules: d.ValidationRules,
		Extends:         d.Extends,
	}
}

func (d bundleDoc) toRegistry() registry.SkillBundle {
	return registry.SkillBundle{ID: d.ID, Requirements: toSkillRequirements(d.Requirements)}
}

func (d gateDoc) toRegistry() registry.QualityGateSpec {
	return registry.QualityGateSpec{ID: d.ID, Kind: d.Kind, Parameters: d.Parameters, Blocking: d.Blocking}
}

func (d stageDoc) toRegistry() registry.Stage {
	return registry.Stage{
		ID:             d.ID,
		Name:           d.Name,
		RoleID:         d.RoleID,
		RequiredSkills: toSkillRequirements(d.RequiredSkills),
		Inputs:         d.Inputs,
		Outputs:        d.Outputs,
		DependsOn:      d.DependsOn,
		QualityGates:   toGates(d.QualityGates),
		Parallelizable: d.Parallelizable,
		ExecutionMode:  d.ExecutionMode,
	}
}

func toGates(docs []gateDoc) []registry.QualityGateSpec {
	out := make([]registry.QualityGateSpec, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRegistry())
	}
	return out
}

func (d workflowDoc) toRegistry() registry.Workflow {
	stages := make([]registry.Stage, 0, len(d.Stages))
	for _, s := range d.Stages {
		stages = append(stages, s.toRegistry())
	}
	return registry.Workflow{ID: d.ID, Name: d.Name, Stages: stages}
}
