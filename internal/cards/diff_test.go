package cards

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		rendered []string
		names    []string
		want     Patch
	}{
		{
			name:     "remove and add",
			rendered: []string{"A", "B", "D"},
			names:    []string{"B", "C", "D"},
			want:     Patch{Removed: []string{"A"}, Added: []string{"C"}},
		},
		{
			name:  "from empty",
			names: []string{"Bob", "Alice"},
			want:  Patch{Added: []string{"Alice", "Bob"}},
		},
		{
			name:     "to empty",
			rendered: []string{"Alice"},
			want:     Patch{Removed: []string{"Alice"}},
		},
		{
			name:     "unchanged ignores input order",
			rendered: []string{"Alice", "Bob"},
			names:    []string{"Bob", "Alice"},
			want:     Patch{},
		},
		{
			name:  "duplicates collapse",
			names: []string{"Bob", "Bob", "Bob"},
			want:  Patch{Added: []string{"Bob"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.rendered, tt.names)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Diff mismatch (-want +got):\n%s", diff)
			}
			if got.Empty() != (len(tt.want.Added)+len(tt.want.Removed) == 0) {
				t.Errorf("Empty() = %v", got.Empty())
			}
		})
	}
}
