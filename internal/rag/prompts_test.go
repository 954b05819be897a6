package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/model"
)

func TestBuildGenerationMessagesLayout(t *testing.T) {
	chunks := []model.Chunk{
		{Text: "first passage", Metadata: map[string]string{model.MetaSourceURL: "https://a.example"}},
		{Text: "second passage"},
	}
	history := []model.Turn{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
	}

	msgs := buildGenerationMessages("the question", history, chunks, 6)
	require.Len(t, msgs, 4)

	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "first passage")
	assert.Contains(t, msgs[0].Content, "second passage")
	assert.Contains(t, msgs[0].Content, "https://a.example")

	// History stays in chronological order between system prompt and question.
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, "earlier answer", msgs[2].Content)
	assert.Equal(t, model.RoleUser, msgs[3].Role)
	assert.Equal(t, "the question", msgs[3].Content)
}

func TestBuildGenerationMessagesBoundsHistory(t *testing.T) {
	var history []model.Turn
	for i := 0; i < 20; i++ {
		history = append(history, model.Turn{Role: model.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	msgs := buildGenerationMessages("q", history, nil, 4)
	// system + 4 most recent turns + question
	require.Len(t, msgs, 6)
	assert.Equal(t, "turn 16", msgs[1].Content)
	assert.Equal(t, "turn 19", msgs[4].Content)
}

func TestBuildGenerationMessagesEmptyContext(t *testing.T) {
	msgs := buildGenerationMessages("q", nil, nil, 6)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "(no context available)")
}
