package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func TestParseChange(t *testing.T) {
	tests := []struct {
		arg     string
		want    models.FileChange
		wantErr bool
	}{
		{"src/a.ts", models.FileChange{File: "src/a.ts", Type: models.ChangeModify}, false},
		{"src/a.ts:delete", models.FileChange{File: "src/a.ts", Type: models.ChangeDelete}, false},
		{"src/new.ts:create", models.FileChange{File: "src/new.ts", Type: models.ChangeCreate}, false},
		{"src/a.ts:rename", models.FileChange{}, true},
		{":modify", models.FileChange{File: ":modify", Type: models.ChangeModify}, false},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseChange(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChange(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseChange(%q) = %+v, want %+v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in      string
		want    models.TaskType
		wantErr bool
	}{
		{"", "", false},
		{"bug", models.TaskTypeBug, false},
		{"Feature", models.TaskTypeFeature, false},
		{"quality-check", models.TaskTypeQualityCheck, false},
		{"chore", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTaskType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTaskType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseTaskType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,c ,")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
}

func TestConfigValues(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()

	tests := []struct {
		key   string
		value string
		check func(*config.Config) bool
	}{
		{"graph.max_depth", "4", func(c *config.Config) bool { return c.Graph.MaxDepth == 4 }},
		{"brainstorm.session_timeout", "90s", func(c *config.Config) bool { return c.Brainstorm.SessionTimeout == 90*time.Second }},
		{"anthropic.use_bedrock", "true", func(c *config.Config) bool { return c.Anthropic.UseBedrock }},
		{"graph.skip_dirs", "vendor, dist", func(c *config.Config) bool {
			return reflect.DeepEqual(c.Graph.SkipDirs, []string{"vendor", "dist"})
		}},
		{"Knowledge.Backend", "SQLite", func(c *config.Config) bool { return c.Knowledge.Backend == "sqlite" }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue(%q, %q) error = %v", tt.key, tt.value, err)
			}
			if !tt.check(cfg) {
				t.Errorf("setConfigValue(%q, %q) did not apply", tt.key, tt.value)
			}
			if _, err := getConfigValue(cfg, tt.key); err != nil {
				t.Errorf("getConfigValue(%q) error = %v", tt.key, err)
			}
		})
	}

	for _, bad := range [][2]string{
		{"graph.max_depth", "deep"},
		{"graph.stale_after", "tomorrow"},
		{"anthropic.api_key", "sk-ant-123"},
		{"no.such_key", "1"},
	} {
		if err := setConfigValue(cfg, bad[0], bad[1]); err == nil {
			t.Errorf("setConfigValue(%q, %q) = nil, want error", bad[0], bad[1])
		}
	}

	if got, _ := getConfigValue(cfg, "anthropic.api_key"); got != "(not set)" {
		t.Errorf("api key display = %q, want (not set)", got)
	}
	for _, key := range configKeys {
		if _, err := getConfigValue(cfg, key); err != nil {
			t.Errorf("listed key %q is not readable: %v", key, err)
		}
	}
}

func TestReadSolutions(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name     string
		body     string
		wantTask bool
		wantN    int
		wantErr  bool
	}{
		{"array", `[{"id":"s1","agent_id":"backend"},null,{"id":"s2","agent_id":"qa"}]`, false, 2, false},
		{"object", `{"task":{"id":"t1","description":"add login"},"solutions":[{"id":"s1"}]}`, true, 1, false},
		{"empty", `[]`, false, 0, true},
		{"garbage", `{not json`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, sols, err := readSolutions(write(tt.name+".json", tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readSolutions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (task != nil) != tt.wantTask {
				t.Errorf("task = %v, wantTask %v", task, tt.wantTask)
			}
			if len(sols) != tt.wantN {
				t.Errorf("got %d solutions, want %d", len(sols), tt.wantN)
			}
		})
	}

	if _, _, err := readSolutions(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("readSolutions(missing) = nil error")
	}
}
