package shadow

import (
	"errors"
	"testing"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
)

func TestShadowOf(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		want    string
		wantErr error
	}{
		{"feature branch", "feature/x", "shadow/feature/x", nil},
		{"main branch", "main", "shadow/main", nil},
		{"already shadow", "shadow/main", "", errorkind.ErrAlreadyShadow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShadowOf(tt.branch)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ShadowOf(%q) err = %v, want %v", tt.branch, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ShadowOf(%q) = %q, want %q", tt.branch, got, tt.want)
			}
		})
	}
}

func TestHasUnrelatedChanges(t *testing.T) {
	tests := []struct {
		name     string
		porcelain string
		files    []string
		want     bool
	}{
		{
			name:      "only batch files modified",
			porcelain: " M src/a.ts\n M src/b.ts\n",
			files:     []string{"src/a.ts", "src/b.ts"},
			want:      false,
		},
		{
			name:      "unrelated file modified",
			porcelain: " M src/a.ts\n M src/c.ts\n",
			files:     []string{"src/a.ts"},
			want:      true,
		},
		{
			name:      "empty status",
			porcelain: "",
			files:     []string{"src/a.ts"},
			want:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hasUnrelatedChanges(tt.porcelain, tt.files)
			if got != tt.want {
				t.Errorf("hasUnrelatedChanges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindStashRef(t *testing.T) {
	list := "stash@{0}: On main: auto-commit-engine/abc123\nstash@{1}: WIP on feature: something else\n"
	ref, err := findStashRef(list, "auto-commit-engine/abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "stash@{0}" {
		t.Errorf("findStashRef() = %q, want %q", ref, "stash@{0}")
	}

	if _, err := findStashRef(list, "does-not-exist"); err == nil {
		t.Error("expected error for missing token")
	}
}
