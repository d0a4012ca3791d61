package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomwork/loom/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadComposesYAMLAndSkillMarkdown(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "roles.yaml"), `
- id: analyst
  name: Analyst
  required_skills:
    - skill_id: analyze
      min_level: 1
`)
	writeFile(t, filepath.Join(dir, "skills.yaml"), `
- id: analyze
  name: analyze requirements
  dimensions: [analysis]
  deterministic: true
`)
	writeFile(t, filepath.Join(dir, "workflow.yaml"), `
id: wf1
name: Sample Workflow
stages:
  - id: s1
    name: analyze requirements
    role_id: analyst
`)
	writeFile(t, filepath.Join(dir, "skills", "draft", "SKILL.md"), `---
id: draft
name: draft a document
description: produce a first-pass document
dimensions: [writing]
---
# Draft

Write a first pass.
`)

	collection, err := config.Load(dir)
	require.NoError(t, err)

	assert.Len(t, collection.Roles, 1)
	assert.Equal(t, "analyst", collection.Roles[0].ID)

	assert.Len(t, collection.Skills, 2)
	var ids []string
	for _, s := range collection.Skills {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"analyze", "draft"}, ids)

	assert.Equal(t, "wf1", collection.Workflow.ID)
	require.Len(t, collection.Workflow.Stages, 1)
	assert.Equal(t, "analyst", collection.Workflow.Stages[0].RoleID)
}

func TestLoadToleratesMissingOptionalFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "roles.yaml"), `[]`)
	writeFile(t, filepath.Join(dir, "workflow.yaml"), `
id: wf1
name: Empty
stages: []
`)

	collection, err := config.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, collection.Skills)
	assert.Empty(t, collection.Bundles)
}

func TestLoadSkillMarkdownDefaultsIDToDirectoryName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "roles.yaml"), `[]`)
	writeFile(t, filepath.Join(dir, "workflow.yaml"), "id: wf1\nname: x\nstages: []\n")
	writeFile(t, filepath.Join(dir, "skills", "reviewer", "SKILL.md"), `---
name: review a document
description: check a document for issues
---
body
`)

	collection, err := config.Load(dir)
	require.NoError(t, err)
	require.Len(t, collection.Skills, 1)
	assert.Equal(t, "reviewer", collection.Skills[0].ID)
}
