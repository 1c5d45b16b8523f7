package agents

import "fmt"

const decomposeSystem = `You are a research planner. You decompose research
requests into a tree of sub-topics. Respond with strict JSON only, no prose,
no markdown fences.`

func decomposePrompt(title, description string, maxDepth, maxBreadth int) string {
	return fmt.Sprintf(`Decompose the following research request into a tree of sub-topics.

Research request: %s
Details: %s

Respond with a single JSON object of this recursive shape:
{
  "title": "...",
  "description": "...",
  "key_questions": ["...", "..."],
  "data_sources": ["...", "..."],
  "subtopics": [ { ...same shape... } ]
}

Rules:
- at most %d levels of subtopics
- at most %d subtopics per node
- key_questions are concrete, searchable questions
- data_sources are URLs when a specific source is known, otherwise hints
- JSON only, no surrounding text`, title, description, maxDepth, maxBreadth)
}

const summarizeSystem = `You are a research summarizer. Respond with strict
JSON only, no prose, no markdown fences.`

func summarizePrompt(query string, bundle string) string {
	return fmt.Sprintf(`Summarize the research findings below for the query: %s

Findings (JSON):
%s

Respond with a single JSON object:
{
  "executive_summary": "...",
  "key_findings": ["...", "..."],
  "sources": ["url", "url"]
}`, query, bundle)
}

const reasonSystem = `You are a research analyst performing higher-order
reasoning over a summary. Respond with strict JSON only, no prose, no
markdown fences.`

func reasonPrompt(query string, summary string) string {
	return fmt.Sprintf(`Analyze the research summary below for the query: %s

Summary (JSON):
%s

Respond with a single JSON object:
{
  "synthesis": "...",
  "contradictions": ["..."],
  "credibility": "...",
  "gaps": ["..."],
  "insights": ["..."],
  "recommendations": ["..."]
}`, query, summary)
}

const enumerateSystem = `You enumerate hierarchical search spaces. Respond
with strict JSON only, no prose, no markdown fences.`

func enumeratePrompt(baseQuery, searchSpace string) string {
	return fmt.Sprintf(`Enumerate the next hierarchical level of the search space "%s"
for the query "%s". For a country list its states, provinces or departments;
for a state list its counties; and so on.

Respond with a single JSON object:
{
  "subspaces": [
    {"name": "...", "query": "...", "type": "..."}
  ]
}
Each query must combine the base query with one enumerated subdivision.`, searchSpace, baseQuery)
}
