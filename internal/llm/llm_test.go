package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/validate"
)

// fakeCompleter returns canned answers and records the prompts it saw.
type fakeCompleter struct {
	answer string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.answer, f.err
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: `{"title":"a"}`, want: "a"},
		{name: "fenced", content: "```json\n{\"title\":\"b\"}\n```", want: "b"},
		{name: "prose around", content: "Sure! Here it is: {\"title\":\"c\"} Hope that helps.", want: "c"},
		{name: "empty", content: "   ", wantErr: true},
		{name: "no object", content: "I cannot help with that.", wantErr: true},
		{name: "broken object", content: "```\n{\"title\": \n```", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Title string `json:"title"`
			}
			err := DecodeJSON(tt.content, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Title)
		})
	}
}

func TestModelExtractor(t *testing.T) {
	fake := &fakeCompleter{answer: "```json\n" + `{
		"title": "Launch",
		"scenes": [
			{"purpose": "hook", "durationWeight": 0.8, "narration": "Meet the app.", "visualAnchor": "phone"},
			{"purpose": "cta", "narration": "Download today."}
		]
	}` + "\n```"}

	hints := []json.RawMessage{json.RawMessage(`{"platform":"tiktok"}`)}
	got, err := NewModelExtractor(fake, nil).Extract(context.Background(), "A launch video.", hints)
	require.NoError(t, err)

	assert.Equal(t, "Launch", got.Title)
	require.Len(t, got.Scenes, 2)
	assert.Equal(t, "Download today.", got.Scenes[1].Narration)
	assert.Equal(t, extractionSystemPrompt, fake.system)
	assert.Contains(t, fake.user, "A launch video.")
	assert.Contains(t, fake.user, "tiktok")
}

func TestModelExtractorFailures(t *testing.T) {
	tests := []struct {
		name   string
		fake   *fakeCompleter
		target error
	}{
		{name: "call error", fake: &fakeCompleter{err: context.DeadlineExceeded}, target: context.DeadlineExceeded},
		{name: "no scenes", fake: &fakeCompleter{answer: `{"title":"x","scenes":[]}`}, target: ErrNoScenes},
		{name: "empty", fake: &fakeCompleter{answer: ""}, target: ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewModelExtractor(tt.fake, nil).Extract(context.Background(), "text", nil)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestModelRepairer(t *testing.T) {
	req := RepairRequest{
		Manifest: json.RawMessage(`{"scenes":[]}`),
		Violations: []validate.Violation{
			{Kind: validate.KindBusiness, Rule: "duration.sum", Path: "scenes", Message: "off", Severity: validate.SeverityError},
		},
		Treatment: "Scene 1: hello",
	}

	t.Run("accepts fenced object", func(t *testing.T) {
		fake := &fakeCompleter{answer: "Fixed:\n```json\n{\"scenes\":[{\"id\":\"scene_001\"}]}\n```"}
		got, err := NewModelRepairer(fake, nil).Repair(context.Background(), req)
		require.NoError(t, err)
		assert.JSONEq(t, `{"scenes":[{"id":"scene_001"}]}`, string(got))

		assert.Contains(t, fake.user, "duration.sum")
		assert.Contains(t, fake.user, "JSON Schema")
		assert.Contains(t, fake.user, "Scene 1: hello")
	})

	t.Run("rejects non-manifest", func(t *testing.T) {
		fake := &fakeCompleter{answer: `{"answer": "I fixed it"}`}
		_, err := NewModelRepairer(fake, nil).Repair(context.Background(), req)
		assert.ErrorIs(t, err, ErrRejectedCandidate)
	})

	t.Run("propagates call errors", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewModelRepairer(&fakeCompleter{err: boom}, nil).Repair(context.Background(), req)
		assert.ErrorIs(t, err, boom)
	})
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxSnippet+3)
}
