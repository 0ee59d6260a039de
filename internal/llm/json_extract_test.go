package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "fenced json block",
			response: "Here is the plan:\n```json\n{\"steps\": []}\n```\nDone.",
			want:     `{"steps": []}`,
		},
		{
			name:     "fenced block without language tag",
			response: "```\n[1, 2, 3]\n```",
			want:     `[1, 2, 3]`,
		},
		{
			name:     "skips non-json fences",
			response: "```python\nprint('hi')\n```\n{\"ok\": true}",
			want:     `{"ok": true}`,
		},
		{
			name:     "raw object in prose",
			response: `The answer is {"vote": "blue", "confidence": 0.9} as requested.`,
			want:     `{"vote": "blue", "confidence": 0.9}`,
		},
		{
			name:     "nested braces and strings",
			response: `{"a": {"b": "close } brace in string"}, "c": [1]}`,
			want:     `{"a": {"b": "close } brace in string"}, "c": [1]}`,
		},
		{
			name:     "no json at all",
			response: "I could not produce a plan.",
			wantErr:  true,
		},
		{
			name:     "unbalanced json",
			response: `{"a": 1`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractInto(t *testing.T) {
	var out struct {
		Steps []struct {
			ID string `json:"id"`
		} `json:"steps"`
	}

	err := ExtractInto("```json\n{\"steps\":[{\"id\":\"recon\"}]}\n```", &out)
	require.NoError(t, err)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "recon", out.Steps[0].ID)

	err = ExtractInto(`{"steps": "not a list"}`, &out)
	assert.Error(t, err)
}

func TestMockProvider_ReplaysAndRecords(t *testing.T) {
	mock := NewMockProvider("first", "second")

	resp, err := mock.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	// Cycles back to the start.
	resp, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	assert.Len(t, mock.Calls(), 3)
}
