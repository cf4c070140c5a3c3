package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "uploads/u1/doc.pdf", want: "uploads/u1/doc.pdf"},
		{name: "simple prefix", prefix: "root", key: "uploads/u1/doc.pdf", want: "root/uploads/u1/doc.pdf"},
		{name: "prefix trailing slash", prefix: "root/", key: "estimates/u1/d1/estimate.json", want: "root/estimates/u1/d1/estimate.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/uploads/u1/doc.pdf", want: "root/uploads/u1/doc.pdf"},
		{name: "nested prefix", prefix: "root/sub", key: "uploads/u1/doc.pdf", want: "root/sub/uploads/u1/doc.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
