package gfab

import "testing"

func TestParseRefRange(t *testing.T) {
	cases := []struct {
		in       string
		oneBased bool
		name     string
		begin    int64
		end      int64
		wantErr  bool
	}{
		{"chr1:100-200", false, "chr1", 100, 200, false},
		{"chr1:100-200", true, "chr1", 99, 200, false},
		{"chr7:1,234-5,678", true, "chr7", 1233, 5678, false},
		{"chr1_alt:5-9", false, "chr1_alt", 5, 9, false},
		{"HLA-A*01:01:10-20", true, "HLA-A*01:01", 9, 20, false}, // last colon splits
		{"chr1", false, "", 0, 0, true},
		{"chr1:", false, "", 0, 0, true},
		{":100-200", false, "", 0, 0, true},
		{"chr1:100", false, "", 0, 0, true},
		{"chr1:abc-200", false, "", 0, 0, true},
		{"chr1:200-100", false, "", 0, 0, true},
		{"chr1:0-10", true, "", 0, 0, true}, // 1-based coordinates start at 1
	}
	for _, tc := range cases {
		name, begin, end, err := parseRefRange(tc.in, tc.oneBased)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseRefRange(%q, %v) succeeded, want error", tc.in, tc.oneBased)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRefRange(%q, %v) error: %v", tc.in, tc.oneBased, err)
			continue
		}
		if name != tc.name || begin != tc.begin || end != tc.end {
			t.Errorf("parseRefRange(%q, %v) = (%s, %d, %d), want (%s, %d, %d)",
				tc.in, tc.oneBased, name, begin, end, tc.name, tc.begin, tc.end)
		}
	}
}
