package pipeline

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
)

// createPlanPrompt asks for a bullet-point research plan for the query.
func createPlanPrompt(query string) string {
	return fmt.Sprintf(`You are a research planning expert. Break down this research topic into clear, actionable steps.

Topic: %s

Think step by step:
1. What are the main aspects of this topic?
2. What subtopics need investigation?
3. What questions need answering?
4. What order makes sense for research?

Return ONLY bullet points (no numbering). Be concise and specific.`, query)
}

// createResearchPrompt asks for synthesized findings over the gathered
// evidence. Web and document evidence are presented as separate sections so
// the model can weigh them independently.
func createResearchPrompt(query string, plan []string, evidence []retriever.EvidenceItem) string {
	var web, docs strings.Builder
	for _, item := range evidence {
		line := fmt.Sprintf("[%s] %s\n%s\n\n", item.Locator, item.Title, item.Snippet)
		switch item.Source {
		case retriever.SourceWeb:
			web.WriteString(line)
		case retriever.SourceDocument:
			docs.WriteString(line)
		}
	}
	if web.Len() == 0 {
		web.WriteString("No web results available.\n")
	}
	if docs.Len() == 0 {
		docs.WriteString("No knowledge base available.\n")
	}

	return fmt.Sprintf(`Research Topic: %s

Research Plan:
%s

Web Results:
%s
Knowledge Base Context (from ingested documents):
%s
Your Task:
1. Synthesize information from both web and knowledge base
2. Identify key findings and patterns
3. Note any contradictions or important caveats
4. Provide well-structured, detailed research notes
5. Cite sources where possible

Format: Use clear sections with markdown headers.
Be comprehensive but concise.`, query, formatSteps(plan), web.String(), docs.String())
}

// createCritiquePrompt asks for a structured review of the findings. The
// trailing GAP lines are machine-parsed back into the state.
func createCritiquePrompt(query, findings string) string {
	return fmt.Sprintf(`You are a critical research analyst. Review this research and provide constructive criticism.

Query: %s

Research:
%s

Analyze and provide:
1. Accuracy Assessment: Are the claims sound?
2. Gaps: What important information is missing?
3. Source Quality: Are sources credible?
4. Contradictions: Any conflicting information?
5. Improvements: What could be added or clarified?
6. Confidence Level: How confident are you in these findings?

Be fair but thorough. Point out both strengths and weaknesses.
After your analysis, list each concrete gap on its own line starting with "GAP: ".`, query, findings)
}

// createSummaryPrompt asks for the final markdown answer combining findings
// and critique.
func createSummaryPrompt(query, findings, critique string, gaps []string) string {
	gapBlock := ""
	if len(gaps) > 0 {
		gapBlock = fmt.Sprintf("\nIdentified Gaps:\n%s\n", formatSteps(gaps))
	}
	return fmt.Sprintf(`Create a final, well-structured research summary for this query: %s

Use:
Research Findings:
%s

Critical Review:
%s
%s
Your Task:
1. Extract the most important findings
2. Incorporate critique feedback to improve quality
3. Create a clear executive summary
4. List key takeaways (3-5 bullets)
5. Suggest next steps or further research if needed
6. Include confidence assessment

Format as markdown with:
- # Executive Summary
- ## Key Findings
- ## Takeaways
- ## Confidence Assessment
- ## Next Steps (if applicable)

Make it insightful, clear, and actionable.`, query, findings, critique, gapBlock)
}

func formatSteps(steps []string) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// parsePlanSteps extracts bullet or numbered lines from a plan response.
// Bare non-empty lines count as steps too, so loosely formatted responses
// still yield a usable plan.
func parsePlanSteps(response string) []string {
	var steps []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, prefix := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
				break
			}
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "0123456789.) "))
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		steps = append(steps, line)
	}
	return steps
}

// parseGaps splits a critique response into prose and GAP lines.
func parseGaps(response string) (critique string, gaps []string) {
	var prose []string
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if strings.HasPrefix(trimmed, "GAP:") {
			gap := strings.TrimSpace(strings.TrimPrefix(trimmed, "GAP:"))
			if gap != "" {
				gaps = append(gaps, gap)
			}
			continue
		}
		prose = append(prose, line)
	}
	return strings.TrimSpace(strings.Join(prose, "\n")), gaps
}
