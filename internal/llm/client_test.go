package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/conclave/internal/config"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(context.Background(), ClientConfig{APIKey: "test-key-123"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want default", client.Model())
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_WithEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-test-key")
	if _, err := NewClient(context.Background(), ClientConfig{}); err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient(context.Background(), ClientConfig{})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewClient() error = %v, want ErrNoAPIKey", err)
	}
}

func TestConfigFrom(t *testing.T) {
	t.Setenv("MY_KEY", "sk-from-env")
	cc := ConfigFrom(config.AnthropicConfig{
		APIKey:     "${MY_KEY}",
		Model:      "claude-haiku-4-5-20251001",
		UseBedrock: true,
		AWSRegion:  "us-west-2",
	})
	if cc.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cc.APIKey)
	}
	if !cc.UseAWSBedrock || cc.AWSRegion != "us-west-2" {
		t.Errorf("bedrock settings not mapped: %+v", cc)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		in   anthropic.Model
		want anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{"us.anthropic.custom-v1:0", "us.anthropic.custom-v1:0"},
		{"some-custom-model", "some-custom-model"},
	}
	for _, tt := range tests {
		if got := translateModelForBedrock(tt.in); got != tt.want {
			t.Errorf("translateModelForBedrock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 20)
	tr.Add(50, 5)
	in, out := tr.Total()
	if in != 150 || out != 25 || tr.Calls() != 2 {
		t.Errorf("Total() = %d/%d calls %d", in, out, tr.Calls())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"bare", `{"title":"x"}`, "x", false},
		{"fenced", "Here you go:\n```json\n{\"title\": \"y\"}\n```\n", "y", false},
		{"nested", `prefix {"title":"z","meta":{"a":1}} suffix`, "z", false},
		{"none", "no json here", "", true},
		{"invalid", "{not json}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Title string `json:"title"`
			}
			err := DecodeJSON(tt.text, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if v.Title != tt.want {
				t.Errorf("Title = %q, want %q", v.Title, tt.want)
			}
		})
	}
}
