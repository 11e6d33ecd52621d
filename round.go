package conclave

import "fmt"

// RoundType names one of the three interaction phases of a debate.
type RoundType string

const (
	RoundInitial  RoundType = "initial"
	RoundCritique RoundType = "critique"
	RoundDefense  RoundType = "defense"
)

// Response is one participant's output for one round.
type Response struct {
	Model   string `json:"model"`
	Content string `json:"content"`
	// Reasoned is true when the content came out of the ReAct loop.
	Reasoned bool `json:"reasoned,omitempty"`
	// ToolCallsMade lists the tool invocations the participant issued.
	ToolCallsMade []ToolCall `json:"tool_calls_made,omitempty"`
	// RevisedAnswer is populated for defense rounds only. The revised-answer
	// parser falls back to Content, so it is non-empty whenever Content is.
	RevisedAnswer string `json:"revised_answer,omitempty"`
}

// RoundRecord is the completed output of one round. Responses preserve
// arrival order: completion order in the batch executor, submission order in
// the sequential executor.
type RoundRecord struct {
	Number    int        `json:"round_number"`
	Type      RoundType  `json:"round_type"`
	Responses []Response `json:"responses"`
}

// RoundContext carries the prior-round outputs a round's prompts are built
// from. Initial rounds take the zero value; critique rounds need
// InitialResponses; defense rounds need both.
type RoundContext struct {
	InitialResponses  []Response
	CritiqueResponses []Response
}

// RoundConfig is the static per-phase dispatch table consumed by both round
// executors, so that neither re-implements a switch on round type.
type RoundConfig struct {
	Number int
	Type   RoundType
	// UsesTools offers the tool registry to the model (native tool calling).
	UsesTools bool
	// UsesReact routes the participant through the ReAct loop instead of
	// native tool calling.
	UsesReact bool
	// HasRevisedAnswer runs the revised-answer parser over each response.
	HasRevisedAnswer bool

	prompts map[string]string
}

// PromptFor returns the prompt for one participant. ok is false when the
// participant has nothing to do this round (a defense with no own initial
// response to defend); executors skip such participants without recording an
// error, and they stay eligible for later rounds.
func (c RoundConfig) PromptFor(model string) (prompt string, ok bool) {
	prompt, ok = c.prompts[model]
	return prompt, ok
}

// NewRoundConfig builds the config for one round. reactEnabled only applies
// to rounds that use tools; critique rounds never use tools or ReAct.
// date is the calendar date embedded in initial prompts (passed in so the
// builders stay pure).
func NewRoundConfig(rt RoundType, number int, query string, participants []string, rc RoundContext, reactEnabled bool, date string) (RoundConfig, error) {
	cfg := RoundConfig{
		Number:  number,
		Type:    rt,
		prompts: make(map[string]string, len(participants)),
	}

	switch rt {
	case RoundInitial:
		cfg.UsesTools = true
		cfg.UsesReact = reactEnabled
		prompt := BuildInitialPrompt(query, date)
		for _, p := range participants {
			cfg.prompts[p] = prompt
		}
	case RoundCritique:
		if len(rc.InitialResponses) == 0 {
			return RoundConfig{}, fmt.Errorf("critique round %d: no initial responses in context", number)
		}
		for _, p := range participants {
			cfg.prompts[p] = BuildCritiquePrompt(query, rc.InitialResponses, p)
		}
	case RoundDefense:
		if len(rc.InitialResponses) == 0 {
			return RoundConfig{}, fmt.Errorf("defense round %d: no initial responses in context", number)
		}
		cfg.UsesTools = true
		cfg.UsesReact = reactEnabled
		cfg.HasRevisedAnswer = true
		own := make(map[string]Response, len(rc.InitialResponses))
		for _, r := range rc.InitialResponses {
			own[r.Model] = r
		}
		for _, p := range participants {
			initial, ok := own[p]
			if !ok {
				continue // nothing to defend this cycle
			}
			critiques := ExtractCritiquesFor(p, rc.CritiqueResponses)
			cfg.prompts[p] = BuildDefensePrompt(query, initial.Content, critiques)
		}
	default:
		return RoundConfig{}, fmt.Errorf("unknown round type %q", rt)
	}

	return cfg, nil
}
