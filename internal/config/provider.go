package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomwork/loom/internal/registry"
	"gopkg.in/yaml.v3"
)

// Load reads dir and returns the registry.Collection it describes:
//
//	dir/workflow.yaml        required, a single workflowDoc
//	dir/roles.yaml           required, a list of roleDocs
//	dir/bundles.yaml         optional, a list of bundleDocs
//	dir/skills.yaml          optional, a list of skillDocs
//	dir/skills/<id>/SKILL.md optional, one skillDoc per frontmatter file,
//	                         appended to whatever skills.yaml already holds
//
// Unknown YAML fields are ignored (yaml.v3's default KnownFields(false)
// behavior) and duplicate ids are left for registry.New to reject, per
// spec.md §6 "unknown fields are ignored; duplicate ids are rejected."
func Load(dir string) (registry.Collection, error) {
	var workflowDocs workflowDoc
	if err := readYAML(filepath.Join(dir, "workflow.yaml"), &workflowDocs); err != nil {
		return registry.Collection{}, fmt.Errorf("config: workflow.yaml: %w", err)
	}

	var roleDocs []roleDoc
	if err := readYAML(filepath.Join(dir, "roles.yaml"), &roleDocs); err != nil {
		return registry.Collection{}, fmt.Errorf("config: roles.yaml: %w", err)
	}

	var bundleDocs []bundleDoc
	if err := readOptionalYAML(filepath.Join(dir, "bundles.yaml"), &bundleDocs); err != nil {
		return registry.Collection{}, fmt.Errorf("config: bundles.yaml: %w", err)
	}

	var skillDocs []skillDoc
	if err := readOptionalYAML(filepath.Join(dir, "skills.yaml"), &skillDocs); err != nil {
		return registry.Collection{}, fmt.Errorf("config: skills.yaml: %w", err)
	}

	fromMarkdown, err := discoverSkillMarkdown(filepath.Join(dir, "skills"))
	if err != nil {
		return registry.Collection{}, fmt.Errorf("config: skills/: %w", err)
	}
	skillDocs = append(skillDocs, fromMarkdown...)

	skills := make([]registry.Skill, 0, len(skillDocs))
	for _, d := range skillDocs {
		skills = append(skills, d.toRegistry())
	}

	roles := make([]registry.Role, 0, len(roleDocs))
	for _, d := range roleDocs {
		roles = append(roles, d.toRegistry())
	}

	bundles := make([]registry.SkillBundle, 0, len(bundleDocs))
	for _, d := range bundleDocs {
		bundles = append(bundles, d.toRegistry())
	}

	return registry.Collection{
		Skills:   skills,
		Bundles:  bundles,
		Roles:    roles,
		Workflow: workflowDocs.toRegistry(),
	}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// readOptionalYAML is readYAML except a missing file is not an error,
// matching Manager.loadYAMLFile's os.IsNotExist short-circuit.
func readOptionalYAML(path string, out any) error {
	err := readYAML(path, out)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// discoverSkillMarkdown walks dir for one skill per <id>/SKILL.md,
// adapted from skills.Discover/skills.ReadProperties: Anthropic-style
// YAML frontmatter ahead of a Markdown instructions body. The body
// itself (everything after the closing "---") is not part of
// registry.Skill — it's the free-form instructions a prompt-built
// Invoker would interpolate, out of this package's scope per spec.md §6
// framing the LLM transport as opaque.
func discoverSkillMarkdown(dir string) ([]skillDoc, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []skillDoc
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path, ok := findSkillMD(filepath.Join(dir, entry.Name()))
		if !ok {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := parseSkillFrontmatter(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if doc.ID == "" {
			doc.ID = entry.Name()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func findSkillMD(skillDir string) (string, bool) {
	for _, name := range []string{"SKILL.md", "skill.md"} {
		path := filepath.Join(skillDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// parseSkillFrontmatter extracts the YAML frontmatter of a SKILL.md-style
// document, grounded directly on skills.ParseFrontmatter's
// "---\n<yaml>\n---\n<markdown body>" convention.
func parseSkillFrontmatter(content string) (skillDoc, error) {
	if !strings.HasPrefix(content, "---") {
		return skillDoc{}, fmt.Errorf("missing frontmatter delimiter")
	}
	parts := strings.SplitN(content[3:], "---", 2)
	if len(parts) < 2 {
		return skillDoc{}, fmt.Errorf("unterminated frontmatter")
	}

	var doc skillDoc
	if err := yaml.Unmarshal([]byte(parts[0]), &doc); err != nil {
		return skillDoc{}, err
	}
	return doc, nil
}
