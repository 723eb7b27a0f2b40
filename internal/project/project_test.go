package project

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeJSONL(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAliasRoundTrip(t *testing.T) {
	root := t.TempDir()
	realPath := "/Users/dev/my-project"
	alias := AliasOf(realPath)

	writeJSONL(t, filepath.Join(root, alias, "s1.jsonl"), []string{
		fmt.Sprintf(`{"sessionId":"s1","cwd":%q,"timestamp":"2026-01-01T00:00:00Z"}`, realPath),
	})

	reg := NewRegistry(root, filepath.Join(root, "project-config.json"))
	resolved, err := reg.ResolveAlias(alias)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != realPath {
		t.Errorf("resolved = %q, want %q", resolved, realPath)
	}
}

func TestSelectionRuleFrequencyWins(t *testing.T) {
	root := t.TempDir()
	alias := "test-alias"
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf(`{"sessionId":"s","cwd":"/A","timestamp":"2020-01-01T00:00:00Z"}`))
	}
	for i := 0; i < 3; i++ {
		lines = append(lines, fmt.Sprintf(`{"sessionId":"s","cwd":"/B","timestamp":"2030-01-01T00:00:00Z"}`))
	}
	writeJSONL(t, filepath.Join(root, alias, "s.jsonl"), lines)

	reg := NewRegistry(root, filepath.Join(root, "project-config.json"))
	resolved, err := reg.ResolveAlias(alias)
	if err != nil {
		t.Fatal(err)
	}
	// B has count 3, A has count 10: 3 >= 0.3*10 -> B wins (latest).
	if resolved != "/B" {
		t.Errorf("resolved = %q, want /B", resolved)
	}
}

func TestSelectionRuleFrequencyLoses(t *testing.T) {
	root := t.TempDir()
	alias := "test-alias-2"
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, `{"sessionId":"s","cwd":"/A","timestamp":"2020-01-01T00:00:00Z"}`)
	}
	for i := 0; i < 2; i++ {
		lines = append(lines, `{"sessionId":"s","cwd":"/B","timestamp":"2030-01-01T00:00:00Z"}`)
	}
	writeJSONL(t, filepath.Join(root, alias, "s.jsonl"), lines)

	reg := NewRegistry(root, filepath.Join(root, "project-config.json"))
	resolved, err := reg.ResolveAlias(alias)
	if err != nil {
		t.Fatal(err)
	}
	// B has count 2, A has count 10: 2 < 0.3*10=3 -> A wins.
	if resolved != "/A" {
		t.Errorf("resolved = %q, want /A", resolved)
	}
}

func TestResolveAliasFallsBackToDecoded(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, filepath.Join(root, "project-config.json"))
	resolved, err := reg.ResolveAlias("Users-dev-empty")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "Users/dev/empty" {
		t.Errorf("resolved = %q, want Users/dev/empty", resolved)
	}
}

func TestAddManualFailsOnMissingPath(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, filepath.Join(root, "project-config.json"))
	if _, err := reg.AddManual(filepath.Join(root, "does-not-exist"), ""); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestAddManualAndDiscover(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "actual-project")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	agentRoot := filepath.Join(root, "projects")
	reg := NewRegistry(agentRoot, filepath.Join(root, "project-config.json"))

	p, err := reg.AddManual(projectDir, "My Project")
	if err != nil {
		t.Fatal(err)
	}
	if p.Origin != OriginManuallyAdded {
		t.Errorf("Origin = %q", p.Origin)
	}

	projects, err := reg.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].DisplayName != "My Project" {
		t.Errorf("projects = %+v", projects)
	}

	// Duplicate add should conflict.
	if _, err := reg.AddManual(projectDir, ""); err == nil {
		t.Fatal("expected conflict on duplicate add")
	}
}

func TestRenameEmptyClearsOverride(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "actual-project")
	os.MkdirAll(projectDir, 0o755)
	agentRoot := filepath.Join(root, "projects")
	reg := NewRegistry(agentRoot, filepath.Join(root, "project-config.json"))
	p, _ := reg.AddManual(projectDir, "Custom Name")

	if err := reg.Rename(p.Alias, ""); err != nil {
		t.Fatal(err)
	}
	projects, _ := reg.Discover()
	if projects[0].DisplayName == "Custom Name" {
		t.Errorf("expected override cleared, got %q", projects[0].DisplayName)
	}
}

func TestDeleteFailsWhenNonEmpty(t *testing.T) {
	root := t.TempDir()
	agentRoot := filepath.Join(root, "projects")
	alias := "alias-with-sessions"
	writeJSONL(t, filepath.Join(agentRoot, alias, "s1.jsonl"), []string{`{"sessionId":"s1"}`})

	reg := NewRegistry(agentRoot, filepath.Join(root, "project-config.json"))
	if err := reg.Delete(alias); err == nil {
		t.Fatal("expected conflict deleting non-empty project")
	}
}

func TestDeleteSucceedsWhenEmpty(t *testing.T) {
	root := t.TempDir()
	agentRoot := filepath.Join(root, "projects")
	alias := "alias-empty"
	writeJSONL(t, filepath.Join(agentRoot, alias, "s1.jsonl"), []string{"", "  "})

	reg := NewRegistry(agentRoot, filepath.Join(root, "project-config.json"))
	if err := reg.Delete(alias); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(agentRoot, alias)); !os.IsNotExist(err) {
		t.Error("expected project dir removed")
	}
}
