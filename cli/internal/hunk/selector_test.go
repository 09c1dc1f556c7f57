package hunk

import (
	"encoding/json"
	"testing"
)

func TestSelectorUnmarshal_acceptedEncodings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want Selector
	}{
		{"literal ALL", `"ALL"`, All()},
		{"start/end object", `{"start": 3, "end": 9}`, Lines(3, 9)},
		{"range string", `"3-9"`, Lines(3, 9)},
		{"pattern object", `{"pattern": "fn main"}`, Search("fn main")},
		{"legacy hunk header", `"@@ -1,3 +1,4 @@"`, Search("@@ -1,3 +1,4 @@")},
		{"free text", `"TODO cleanup"`, Search("TODO cleanup")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Selector
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal(%s) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSelectorUnmarshal_rejected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{"empty object", `{}`},
		{"number", `42`},
		{"start without end", `{"start": 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Selector
			if err := json.Unmarshal([]byte(tt.in), &got); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.in)
			}
		})
	}
}

func TestSelectorMarshal_canonicalForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Selector
		want string
	}{
		{"all", All(), `"ALL"`},
		{"lines", Lines(3, 9), `{"start":3,"end":9}`},
		{"search", Search("fn main"), `{"pattern":"fn main"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestSelectorRoundTrip(t *testing.T) {
	t.Parallel()
	for _, sel := range []Selector{All(), Lines(1, 100), Search("@@ -1 +1 @@"), Search("text")} {
		data, err := json.Marshal(sel)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", sel, err)
		}
		var got Selector
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != sel {
			t.Errorf("round trip %v -> %s -> %v", sel, data, got)
		}
	}
}
