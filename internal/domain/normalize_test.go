package domain_test

import (
	"testing"

	"github.com/bkyoung/review-dedup/internal/domain"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "lowercases and collapses whitespace",
			body: "Avoid  SQL\t\tinjection\n\nhere",
			want: "avoid sql injection here",
		},
		{
			name: "replaces fenced code blocks",
			body: "use:\n```\ndb.Exec(q, 123)\n```\ndone",
			want: "use: [CODE_BLOCK] done",
		},
		{
			name: "replaces inline code",
			body: "check `foo(42)` here",
			want: "check [INLINE_CODE] here",
		},
		{
			name: "replaces urls",
			body: "see https://example.com/docs?page=3 for details",
			want: "see [URL] for details",
		},
		{
			name: "replaces file paths",
			body: "defined in /internal/store/store.go already",
			want: "defined in [PATH] already",
		},
		{
			name: "replaces line references",
			body: "crash on line 42 of the handler",
			want: "crash on [LINE] of the handler",
		},
		{
			name: "replaces bare numbers",
			body: "this takes 500 ms per request",
			want: "this takes [NUM] ms per request",
		},
		{
			name: "preserves n+1",
			body: "classic n+1 problem in the loader",
			want: "classic n+1 problem in the loader",
		},
		{
			name: "preserves numbers followed by query words",
			body: "this runs 50 queries per page load",
			want: "this runs 50 queries per page load",
		},
		{
			name: "masks numbers before query-prefixed words",
			body: "spent 3 querying sessions on this",
			want: "spent [NUM] querying sessions on this",
		},
		{
			name: "folds full-width characters",
			body: "ＳＱＬインジェクションの危険があります",
			want: "sqlインジェクションの危険があります",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.NormalizeContent(tc.body)
			if got != tc.want {
				t.Errorf("NormalizeContent(%q) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestNormalizeContentSubstitutionOrder(t *testing.T) {
	// Digits inside code, urls and paths must vanish with their enclosing
	// placeholder rather than becoming a nested [NUM].
	got := domain.NormalizeContent("fetch https://api.example.com/v2/users then read `rows[10]` in /srv/app/main.go line 7")
	want := "fetch [URL] then read [INLINE_CODE] in [PATH] [LINE]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
