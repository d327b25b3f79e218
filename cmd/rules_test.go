package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadRulesFile(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
rules:
  - title: go
    text: go developer, golang developer
    weight: 5
  - title: remote
    text: remote, удаленно
    weight: "3"
    active: false
templates:
  - title: default
    text: "Hello! I am interested in {vacancy_title}."
`)

	rules, templates, err := readRulesFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rules) != 2 || len(templates) != 1 {
		t.Fatalf("unexpected result: %+v %+v", rules, templates)
	}
	if !rules[0].Active || rules[1].Active {
		t.Fatalf("active must default to true and honour false: %+v", rules)
	}
	if rules[1].Weight != 3 || rules[1].Text != "remote, удаленно" {
		t.Fatalf("unexpected rule: %+v", rules[1])
	}
	if !templates[0].Active || !strings.Contains(templates[0].Text, "{vacancy_title}") {
		t.Fatalf("unexpected template: %+v", templates[0])
	}
}

func TestReadRulesFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{name: "missing text", file: "a.yaml", content: "rules:\n  - title: go\n    weight: 1\n", want: "title and text are required"},
		{name: "zero weight", file: "b.yaml", content: "rules:\n  - title: go\n    text: go\n", want: "weight must be positive"},
		{name: "unknown key", file: "c.yaml", content: "rules:\n  - title: go\n    text: go\n    weight: 1\n    score: 2\n", want: "decoding rules file"},
		{name: "json template", file: "d.json", content: `{"templates": [{"title": "t"}]}`, want: "template #1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readRulesFile(writeFile(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, _, err := readRulesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestChatHelpers(t *testing.T) {
	id, err := parseChatID(" -100123 ")
	if err != nil || id != -100123 {
		t.Fatalf("unexpected id %d, %v", id, err)
	}
	if _, err := parseChatID("@channel"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Dispatch: DispatchConfig{SendDelay: 300},
			Poll:     PollConfig{Interval: time.Minute, HistoryLimit: 50},
		}
	}

	if err := valid().validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "negative delay", mutate: func(c *Config) { c.Dispatch.SendDelay = -1 }},
		{name: "zero interval", mutate: func(c *Config) { c.Poll.Interval = 0 }},
		{name: "zero history", mutate: func(c *Config) { c.Poll.HistoryLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
