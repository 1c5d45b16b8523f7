package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/models"
)

// AgentTypeArtifact is the registry key of the artifact generator.
const AgentTypeArtifact = "artifact"

// ArtifactRequest is the payload on TopicGeneratingArtifacts.
type ArtifactRequest struct {
	TaskID      string    `json:"task_id"`
	OperationID string    `json:"operation_id"`
	Title       string    `json:"title"`
	Query       string    `json:"query"`
	Summary     Summary   `json:"summary"`
	Reasoning   Reasoning `json:"reasoning"`
}

// ArtifactRef describes one persisted artifact in the reply.
type ArtifactRef struct {
	ArtifactID string `json:"artifact_id"`
	MediaKind  string `json:"media_kind"`
	FilePath   string `json:"file_path"`
}

// ArtifactResult is the success reply payload.
type ArtifactResult struct {
	Artifacts []ArtifactRef `json:"artifacts"`
}

// ArtifactAgent renders one markdown and one JSON artifact per task into
// the storage path and records the artifact rows.
type ArtifactAgent struct {
	base
	now func() time.Time
}

// NewArtifactAgent creates the artifact generator.
func NewArtifactAgent(deps Deps) *ArtifactAgent {
	return &ArtifactAgent{
		base: newBase(AgentTypeArtifact, TopicGeneratingArtifacts, deps),
		now:  time.Now,
	}
}

func (a *ArtifactAgent) Start(ctx context.Context) error {
	return a.start(ctx, a.HandleEnvelope)
}

func (a *ArtifactAgent) HandleEnvelope(ctx context.Context, env *bus.Envelope) {
	var req ArtifactRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	baseName := fmt.Sprintf("%s_%s", Slugify(req.Title), a.now().UTC().Format("20060102"))
	if err := os.MkdirAll(a.deps.StoragePath, 0o755); err != nil {
		a.replyErr(ctx, env, models.ErrKindStore,
			fmt.Errorf("failed to create storage path: %w", err))
		return
	}

	markdown := renderMarkdown(req)
	jsonBlob, err := json.MarshalIndent(map[string]any{
		"task_id":   req.TaskID,
		"title":     req.Title,
		"query":     req.Query,
		"summary":   req.Summary,
		"reasoning": req.Reasoning,
	}, "", "  ")
	if err != nil {
		a.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}

	result := &ArtifactResult{}
	files := []struct {
		kind    models.MediaKind
		ext     string
		content string
	}{
		{models.MediaMarkdown, ".md", markdown},
		{models.MediaJSON, ".json", string(jsonBlob)},
	}
	for _, f := range files {
		path := filepath.Join(a.deps.StoragePath, baseName+f.ext)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			a.replyErr(ctx, env, models.ErrKindStore,
				fmt.Errorf("failed to write artifact %s: %w", path, err))
			return
		}
		row, err := a.deps.Store.CreateArtifact(ctx, &models.Artifact{
			TaskID:    req.TaskID,
			Title:     req.Title,
			MediaKind: f.kind,
			Content:   f.content,
			FilePath:  path,
		})
		if err != nil {
			a.replyErr(ctx, env, models.ErrKindStore, err)
			return
		}
		result.Artifacts = append(result.Artifacts, ArtifactRef{
			ArtifactID: row.ID,
			MediaKind:  string(f.kind),
			FilePath:   path,
		})
	}

	payload, err := encodePayload(result)
	if err != nil {
		a.replyErr(ctx, env, models.ErrKindParse, err)
		return
	}
	a.reply(ctx, env, okPayload(payload))
}

func renderMarkdown(req ArtifactRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", req.Title)
	fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", req.Summary.ExecutiveSummary)

	b.WriteString("## Key Findings\n\n")
	for _, f := range req.Summary.KeyFindings {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	fmt.Fprintf(&b, "\n## Analysis\n\n%s\n\n", req.Reasoning.Synthesis)

	writeListSection(&b, "Contradictions", req.Reasoning.Contradictions)
	writeListSection(&b, "Gaps", req.Reasoning.Gaps)
	writeListSection(&b, "Insights", req.Reasoning.Insights)
	writeListSection(&b, "Recommendations", req.Reasoning.Recommendations)

	b.WriteString("## Sources\n\n")
	for _, s := range req.Summary.Sources {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

func writeListSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// Slugify lowercases the title and reduces it to hyphen-separated
// alphanumeric runs. Empty input slugifies to "untitled".
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
