package archive

import "testing"

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://receipts/previews/t1/0-a.jpg", "receipts", "previews/t1/0-a.jpg", false},
		{"gs://receipts/a.jpg", "receipts", "a.jpg", false},
		{"gs://receipts", "", "", true},
		{"gs://receipts/", "", "", true},
		{"https://example.com/a.jpg", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		bucket, object, err := splitURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitURI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("splitURI(%q): got %q/%q, want %q/%q", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
		}
	}
}
