package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedTime(t *testing.T) {
	tests := []struct {
		name         string
		depth        int
		children     int
		keyQuestions int
		want         float64
	}{
		{"root leaf", 0, 0, 0, 3.0},
		{"root with children", 0, 2, 0, 4.0},
		{"depth one", 1, 0, 5, 3.0},
		{"deep node", 3, 1, 2, 2.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, expectedTime(tt.depth, tt.children, tt.keyQuestions), 1e-9)
		})
	}
}

func TestSelectAgentType(t *testing.T) {
	assert.Equal(t, subtaskAgentSummarizer, selectAgentType(&TopicNode{
		Subtopics: []TopicNode{{Title: "child"}},
	}))
	assert.Equal(t, subtaskAgentBrowser, selectAgentType(&TopicNode{
		DataSources: []string{"https://example.org/data"},
	}))
	assert.Equal(t, subtaskAgentQuery, selectAgentType(&TopicNode{
		DataSources: []string{"government registries"},
	}))
	assert.Equal(t, subtaskAgentQuery, selectAgentType(&TopicNode{}))
}

func TestPersistPlan_BreadthFirstOrder(t *testing.T) {
	store := newFakeStore()
	p := NewPlanner(Deps{Store: store})

	root := &TopicNode{
		Title:       "root",
		Description: "root topic",
		Subtopics: []TopicNode{
			{Title: "a", KeyQuestions: []string{"qa1", "qa2"}},
			{Title: "b", Subtopics: []TopicNode{
				{Title: "b1", KeyQuestions: []string{"qb1"}},
			}},
		},
	}

	plan, err := p.persistPlan(t.Context(), "task-1", root)
	require.NoError(t, err)

	assert.Equal(t, 4, plan.SubtaskCount)
	assert.Equal(t, 2, plan.LeafCount)
	require.Len(t, plan.Questions, 3)
	assert.Equal(t, "qa1", plan.Questions[0].Question)
	assert.Equal(t, "qb1", plan.Questions[2].Question)

	require.Len(t, store.subtasks, 4)
	// Parents precede children; siblings sit side by side.
	assert.Equal(t, "root topic", store.subtasks[0].Description)
	assert.Nil(t, store.subtasks[0].ParentID)
	assert.Equal(t, "a", store.subtasks[1].Description)
	assert.Equal(t, "b", store.subtasks[2].Description)
	assert.Equal(t, "b1", store.subtasks[3].Description)
	require.NotNil(t, store.subtasks[3].ParentID)
	assert.Equal(t, store.subtasks[2].ID, *store.subtasks[3].ParentID)

	for i, st := range store.subtasks {
		assert.Equal(t, i, st.Position)
	}
	// Non-leaf nodes get the summarizer; leaves get search agents.
	assert.Equal(t, subtaskAgentSummarizer, store.subtasks[0].AgentType)
	assert.Equal(t, subtaskAgentQuery, store.subtasks[1].AgentType)
}

func TestLeafQuestions_Fallbacks(t *testing.T) {
	assert.Equal(t, []string{"q1"}, leafQuestions(&TopicNode{KeyQuestions: []string{"q1"}}))
	assert.Equal(t, []string{"desc"}, leafQuestions(&TopicNode{Description: "desc"}))
	assert.Equal(t, []string{"title"}, leafQuestions(&TopicNode{Title: "title"}))
	assert.Nil(t, leafQuestions(&TopicNode{}))
}
