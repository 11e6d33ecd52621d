package conclave

import (
	"fmt"
	"strings"
)

// Prompt builders are pure: identical inputs always produce identical
// strings, so every phase is reproducible in tests.

// BuildInitialPrompt asks the question cold. date is the current calendar
// date (e.g. "2026-08-02") so time-sensitive searches are oriented.
func BuildInitialPrompt(query, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date is %s.\n\n", date)
	b.WriteString("Answer the following question as well as you can. ")
	b.WriteString("A search_web tool is available if you need current or factual information; use it when it would improve your answer.\n\n")
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// BuildCritiquePrompt asks one participant to critique every other
// participant's initial response, under a fixed header format the critique
// extractor relies on.
func BuildCritiquePrompt(query string, initial []Response, self string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Below are the initial responses from each panel member.\n\n")
	for _, r := range initial {
		fmt.Fprintf(&b, "### Response from %s\n%s\n\n", r.Model, r.Content)
	}
	fmt.Fprintf(&b, "You are %s. Critique each OTHER panel member's response: identify factual errors, weak reasoning, and omissions. Skip your own response entirely.\n\n", self)
	b.WriteString("Format your answer as one section per member, each beginning with a header of the exact form:\n\n")
	b.WriteString("## Critique of <model>\n\n")
	b.WriteString("with the member's name after \"Critique of\".")
	return b.String()
}

// BuildDefensePrompt asks a participant to address the critiques aimed at its
// initial response and produce a revised one.
func BuildDefensePrompt(query, ownInitial, critiques string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	fmt.Fprintf(&b, "Your initial response was:\n\n%s\n\n", ownInitial)
	if critiques != "" {
		fmt.Fprintf(&b, "Other panel members raised the following critiques of your response:\n\n%s\n\n", critiques)
	} else {
		b.WriteString("No panel member raised a critique of your response.\n\n")
	}
	b.WriteString("Respond with exactly two sections:\n\n")
	b.WriteString("## Addressing Critiques\n\nConcede valid points and rebut invalid ones.\n\n")
	b.WriteString("## Revised Response\n\nYour complete, improved answer to the question. The search_web tool is available if a critique exposed a factual gap.")
	return b.String()
}

// BuildPeerRankPrompt asks a participant to rank the anonymized responses.
// labels follows submission order: labels[i] names responses[i].
func BuildPeerRankPrompt(query string, labels []string, responses []Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Below are anonymized responses to the question.\n\n")
	for i, r := range responses {
		fmt.Fprintf(&b, "### Response %s\n%s\n\n", labels[i], r.Content)
	}
	b.WriteString("Evaluate the responses for accuracy, depth, and clarity. Then rank them from best to worst.\n\n")
	b.WriteString("End your answer with a block of the exact form (no commentary after it):\n\n")
	b.WriteString("FINAL RANKING:\n")
	for i := range responses {
		fmt.Fprintf(&b, "%d. Response X\n", i+1)
	}
	b.WriteString("\nwhere each X is one of the response letters above.")
	return b.String()
}

// BuildDebateReflectionPrompt gives the chairman the full debate transcript
// and asks for an analysis followed by a synthesis under a fixed boundary.
func BuildDebateReflectionPrompt(query string, rounds []RoundRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("A panel of models debated this question. The full transcript follows.\n\n")
	for _, round := range rounds {
		fmt.Fprintf(&b, "--- Round %d (%s) ---\n\n", round.Number, round.Type)
		for _, r := range round.Responses {
			fmt.Fprintf(&b, "### %s\n%s\n\n", r.Model, roundDisplayContent(round.Type, r))
		}
	}
	b.WriteString(reflectionInstructions)
	return b.String()
}

// BuildRankingReflectionPrompt gives the chairman the ranking-pipeline
// transcript: stage-1 answers and stage-2 peer evaluations.
func BuildRankingReflectionPrompt(query string, stage1 []Response, stage2 []RankingRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("A panel of models answered this question independently.\n\n")
	for _, r := range stage1 {
		fmt.Fprintf(&b, "### %s\n%s\n\n", r.Model, r.Content)
	}
	b.WriteString("Each member then ranked the anonymized answers:\n\n")
	for _, rec := range stage2 {
		fmt.Fprintf(&b, "### Evaluation by %s\n%s\n\n", rec.Model, rec.EvaluationText)
	}
	b.WriteString(reflectionInstructions)
	return b.String()
}

const reflectionInstructions = "As chairman, analyze the transcript: where do the members agree, where do they disagree, which factual claims deserve scrutiny, and which responses stand out in quality. Then write a header of the exact form:\n\n## Synthesis\n\nfollowed by the single best final answer to the question, drawing on the strongest material above."

// roundDisplayContent picks what a transcript shows for one response: the
// revised answer for defense rounds, the raw content otherwise.
func roundDisplayContent(rt RoundType, r Response) string {
	if rt == RoundDefense && r.RevisedAnswer != "" {
		return r.RevisedAnswer
	}
	return r.Content
}

// WrapReactPrompt prepends the Thought/Action/Observation protocol to a phase
// prompt. maxIter caps the number of search actions the model may take.
func WrapReactPrompt(prompt string, maxIter int) string {
	var b strings.Builder
	b.WriteString("Work through this task using the following protocol. On each turn, write:\n\n")
	b.WriteString("Thought: your reasoning about what to do next\n")
	b.WriteString("Action: exactly one of\n")
	b.WriteString("  search_web(\"query\") — search the web for current or factual information\n")
	b.WriteString("  respond() — stop reasoning and write your final answer\n\n")
	b.WriteString("After a search_web action you will receive an Observation with the results. ")
	fmt.Fprintf(&b, "You may take at most %d search actions; after that, respond. ", maxIter)
	b.WriteString("When you choose respond(), follow it with your complete answer.\n\n")
	b.WriteString(prompt)
	return b.String()
}
