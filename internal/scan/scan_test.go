package scan

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pronounguard/internal/pronoun"
)

func scanText(text string, people []Person, opts Options) *Result {
	return New(nil).Scan(text, people, opts)
}

func TestMaskIgnorable_PreservesOffsets(t *testing.T) {
	src := "before `he said` after\n\n```\nhe is here\n```\n\n> she was there\n\nend"
	masked := MaskIgnorable(src)

	require.Equal(t, len(src), len(masked))
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(masked, "\n"))
	assert.NotContains(t, masked, "he said")
	assert.NotContains(t, masked, "he is here")
	assert.NotContains(t, masked, "she was there")
	assert.Contains(t, masked, "before")
	assert.Contains(t, masked, "after")
	assert.True(t, strings.HasSuffix(masked, "end"))
}

func TestMaskIgnorable_IndentedCode(t *testing.T) {
	src := "Look:\n\n    he is in code\n\nHe is not"
	masked := MaskIgnorable(src)
	assert.NotContains(t, masked, "he is in code")
	assert.Contains(t, masked, "He is not")
}

func TestMaskIgnorable_PlainText(t *testing.T) {
	src := "He is really good at coding @Alice"
	assert.Equal(t, src, MaskIgnorable(src))
	assert.Equal(t, "", MaskIgnorable(""))
}

func TestScan_ScenarioA(t *testing.T) {
	res := scanText("He is really good at coding @Alice", []Person{{ID: "Alice"}}, Options{})

	require.Len(t, res.Occurrences, 1)
	occ := res.Occurrences[0]
	assert.Equal(t, "he", occ.Token)
	assert.Equal(t, "He", occ.Original)
	assert.Equal(t, pronoun.RoleSubject, occ.Role)
	assert.Equal(t, 0, occ.Position)
	assert.Equal(t, 2, occ.End)
	assert.GreaterOrEqual(t, occ.Confidence, 80)
	assert.Equal(t, []string{SignalClauseStart, SignalVerb}, occ.Signals)

	require.Len(t, res.Mentions, 1)
	assert.Equal(t, "@Alice", res.Mentions[0].Marker)
	assert.Equal(t, []string{"he"}, res.Nearby["Alice"])
}

func TestScan_ScenarioB(t *testing.T) {
	res := scanText("Him and his team did great work @Alex", []Person{{ID: "Alex"}}, Options{})

	require.Len(t, res.Occurrences, 2)
	assert.Equal(t, pronoun.RoleObject, res.Occurrences[0].Role)
	assert.Equal(t, pronoun.RolePossessiveDeterminer, res.Occurrences[1].Role)
	assert.Equal(t, 70, res.Occurrences[0].Confidence)
	assert.Equal(t, 50, res.Occurrences[1].Confidence)
	assert.Equal(t, []string{"him", "his"}, res.Nearby["Alex"])
}

func TestScan_FencedCodeInvisible(t *testing.T) {
	text := "Check this @Alice\n\n```\nhe is broken\n```\n"
	res := scanText(text, []Person{{ID: "Alice"}}, Options{})
	assert.Empty(t, res.Occurrences)

	res = scanText(text, []Person{{ID: "Alice"}}, Options{KeepIgnorable: true})
	assert.Len(t, res.Occurrences, 1)
}

func TestScan_WholeWordsOnly(t *testing.T) {
	res := scanText("The theme and hero helped the itinerary", nil, Options{})
	assert.Empty(t, res.Occurrences)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		token string
		want  int
	}{
		{"clause start and verb", "He is here", "He", 90},
		{"plain object", "I saw him yesterday", "him", 50},
		{"contraction", "I think he's great", "he", 70},
		{"after sentence", "Done. she went home", "she", 90},
		{"media and fiction", "A movie villain, he is bad", "he", 20},
		{"clamped high", "Friend. He is a member and a colleague", "He", 100},
		{"inside quotes", `I wrote "and he is gone" yesterday`, "he", 45},
		{"url", "see https://x.io and he is there", "he", 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := strings.Index(tt.text, tt.token)
			require.GreaterOrEqual(t, start, 0)
			got, _ := score(tt.text, start, start+len(tt.token))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-40))
	assert.Equal(t, 100, Clamp(140))
	assert.Equal(t, 63, Clamp(63))
}

func TestScan_WindowPolicies(t *testing.T) {
	people := []Person{{ID: "Alice"}}

	before := "he " + strings.Repeat("x", 150) + " @Alice"
	assert.Empty(t, scanText(before, people, Options{Window: ProximityWindow}).ForPerson("Alice"))
	assert.Len(t, scanText(before, people, Options{Window: CorrelationWindow}).ForPerson("Alice"), 1)

	after := "@Alice " + strings.Repeat("x", 250) + " she"
	assert.Len(t, scanText(after, people, Options{Window: ProximityWindow}).ForPerson("Alice"), 1)
	assert.Empty(t, scanText(after, people, Options{Window: CorrelationWindow}).ForPerson("Alice"))
}

func TestScan_NoMarkerMeansWholeText(t *testing.T) {
	res := scanText("she said he is fine", []Person{{ID: "bob"}}, Options{})
	assert.Empty(t, res.Mentions)
	assert.Len(t, res.ForPerson("bob"), 2)
	assert.Equal(t, []string{"he", "she"}, res.Nearby["bob"])
	assert.Equal(t, -1, res.Distance("bob", res.Occurrences[0]))
	assert.Nil(t, res.ForPerson("stranger"))
}

func TestScan_MentionForms(t *testing.T) {
	people := []Person{{ID: "123", Names: []string{"Sam"}}}
	text := "<@123> and <@!123> and @sam and mail sam@sam.io and @Samwise"
	res := scanText(text, people, Options{})

	var markers []string
	for _, m := range res.Mentions {
		markers = append(markers, m.Marker)
	}
	if diff := cmp.Diff([]string{"<@123>", "<@!123>", "@sam"}, markers); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_PronounInsideMarkerIgnored(t *testing.T) {
	res := scanText("@her said hi", []Person{{ID: "her"}}, Options{})
	assert.Empty(t, res.Occurrences)
}

func TestScan_Distance(t *testing.T) {
	text := "@Alice he is here and @Bob"
	res := scanText(text, []Person{{ID: "Alice"}, {ID: "Bob"}}, Options{})
	require.Len(t, res.Occurrences, 1)
	occ := res.Occurrences[0]
	assert.Less(t, res.Distance("Alice", occ), res.Distance("Bob", occ))
}

func TestScan_Deterministic(t *testing.T) {
	text := "She said his friend is here, @Alex. They will call him later @Alice"
	people := []Person{{ID: "Alex"}, {ID: "Alice"}}
	first := scanText(text, people, Options{})
	for i := 0; i < 5; i++ {
		again := scanText(text, people, Options{})
		if diff := cmp.Diff(first.Occurrences, again.Occurrences); diff != "" {
			t.Fatalf("scan not deterministic (-first +again):\n%s", diff)
		}
		assert.Equal(t, first.Nearby, again.Nearby)
	}
}

func TestScan_ExtraSets(t *testing.T) {
	table, err := pronoun.DefaultTable().With([]pronoun.Set{{
		Label: "ve/ver",
		Forms: map[pronoun.Role][]string{pronoun.RoleSubject: {"ve"}, pronoun.RoleObject: {"ver"}},
	}})
	require.NoError(t, err)

	res := New(table).Scan("I told ver already", nil, Options{})
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, pronoun.RoleObject, res.Occurrences[0].Role)
}

func TestWindowByName(t *testing.T) {
	w, ok := WindowByName("")
	assert.True(t, ok)
	assert.Equal(t, ProximityWindow, w)

	w, ok = WindowByName("Correlation")
	assert.True(t, ok)
	assert.Equal(t, CorrelationWindow, w)

	_, ok = WindowByName("blended")
	assert.False(t, ok)
}
