package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/llm"
)

// happyPathLLM scripts every LLM-backed stage with coherent outputs: one
// leaf subtopic with one searchable question, then a summary and analysis
// referencing the stub search hit.
func happyPathLLM() *llm.ScriptedClient {
	return llm.NewScripted().
		Reply("Decompose",
			`{"title":"root","key_questions":[],"subtopics":[{"title":"leaf","key_questions":["stub question"]}]}`).
		Reply("Summarize",
			`{"executive_summary":"Adoption is accelerating.","key_findings":["finding one"],"sources":["https://example.org/stub"]}`).
		Reply("Analyze",
			`{"synthesis":"The evidence is consistent.","insights":["insight one"],"recommendations":["recommendation one"]}`)
}

// CreateTask posts a task and returns its id.
func (app *TestApp) CreateTask(t *testing.T, body map[string]any) string {
	t.Helper()
	resp := app.postJSON(t, "/tasks", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))

	var out struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.TaskID)
	return out.TaskID
}

// GetTask fetches one task; the returned map is the flat response body
// with the task fields at the top level and an "artifacts" list alongside.
func (app *TestApp) GetTask(t *testing.T, taskID string) map[string]any {
	t.Helper()
	resp, err := http.Get(app.BaseURL + "/tasks/" + taskID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// WaitForTaskStatus polls GET /tasks/:id until the task reaches status.
func (app *TestApp) WaitForTaskStatus(t *testing.T, taskID, status string, timeout time.Duration) map[string]any {
	t.Helper()
	var last string
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		body := app.GetTask(t, taskID)
		last, _ = body["status"].(string)
		if last == status {
			return body
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %q (last %q)", taskID, status, last)
	return nil
}

func (app *TestApp) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(app.BaseURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// eventTypes projects the event_type sequence from collected events,
// keeping only the listed types.
func eventTypes(events []WSEvent, keep ...string) []string {
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	var out []string
	for _, e := range events {
		if !kept[e.Type] {
			continue
		}
		if phase, ok := e.Parsed["phase"].(string); ok && phase != "" {
			out = append(out, fmt.Sprintf("%s:%s", e.Type, phase))
		} else {
			out = append(out, e.Type)
		}
	}
	return out
}
