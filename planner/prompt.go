// Package planner holds the model-agnostic half of the planning brain: the
// system contract, the response schema, and the decoder. Backends under
// planner/ollama and planner/bedrock handle transport only.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"voicelog"
	"voicelog/action"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// ContextBlock renders pending actions and recent entries into one user
// message so the model can propose replacements, edits, and deletes against
// real ids. Returns "" when there is nothing to show.
func ContextBlock(req voicelog.PlanRequest) string {
	if len(req.ExistingActions) == 0 && len(req.RecentEntries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("CONTEXT\n")
	if len(req.ExistingActions) > 0 {
		payload, _ := json.Marshal(req.ExistingActions)
		b.WriteString("Pending actions awaiting confirmation:\n")
		b.Write(payload)
		b.WriteString("\n")
	}
	if len(req.RecentEntries) > 0 {
		payload, _ := json.Marshal(req.RecentEntries)
		b.WriteString("Recently saved entries (target these for edits/deletes by entryId):\n")
		b.Write(payload)
		b.WriteString("\n")
	}
	return b.String()
}

// ParsePlanResponse decodes model content into a PlanResponse. Models
// occasionally wrap JSON in code fences or prose despite the contract, so the
// outermost object is extracted before decoding. Out-of-range decision values
// fall back to the conservative defaults instead of leaking through.
func ParsePlanResponse(content string) (voicelog.PlanResponse, error) {
	raw := extractObject(content)
	if raw == "" {
		return voicelog.PlanResponse{}, fmt.Errorf("no JSON object in model output")
	}

	var out voicelog.PlanResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return voicelog.PlanResponse{}, err
	}
	if out.Message == "" {
		return voicelog.PlanResponse{}, fmt.Errorf("planner output missing message")
	}

	switch out.Decision.Apply {
	case voicelog.ApplyNone, voicelog.ApplyConfirm, voicelog.ApplyAuto:
	default:
		out.Decision.Apply = voicelog.ApplyNone
	}
	switch out.Decision.ActionHandling {
	case action.HandlingKeep, action.HandlingClear, action.HandlingReplace:
	default:
		if len(out.Actions) > 0 {
			out.Decision.ActionHandling = action.HandlingReplace
		} else {
			out.Decision.ActionHandling = action.HandlingKeep
		}
	}
	return out, nil
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// ParseConsentVerdict normalizes a one-word classifier reply. Anything the
// contract does not name is treated as a new instruction, never dropped.
func ParseConsentVerdict(content string) voicelog.ConsentIntent {
	verdict := strings.ToLower(strings.Trim(strings.TrimSpace(content), `"'.`))
	switch voicelog.ConsentIntent(verdict) {
	case voicelog.ConsentConfirm, voicelog.ConsentCancel, voicelog.ConsentNewInstruction:
		return voicelog.ConsentIntent(verdict)
	}
	return voicelog.ConsentNewInstruction
}

// ResponseSchema describes the exact shape the model must emit. It is
// rendered into the system prompt so the contract and the decoder cannot
// drift apart.
func ResponseSchema() *jsonschema.Schema {
	item := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"label":         {Type: "string", Description: "Spoken name of the food"},
			"foodQuery":     {Type: "string", Description: "Search text for the food database; defaults to label"},
			"gramsConsumed": {Type: "number"},
			"quantityCount": {Type: "number"},
			"quantityUnit":  {Type: "string"},
			"servings":      {Type: "number"},
		},
		Required: []string{"label"},
	}

	actionSchema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"kind":       {Type: "string", Enum: []any{"meal", "symptom", "supplement", "sleep", "shoppingItem", "delete"}},
			"operation":  {Type: "string", Enum: []any{"create", "edit", "delete"}},
			"title":      {Type: "string", Description: "Short human-readable summary"},
			"confidence": {Type: "number", Description: "0..1"},
			"entryId":    {Type: "string", Description: "Required for edit/delete, from recent entries"},

			"date":     {Type: "string", Description: "YYYY-MM-DD"},
			"mealType": {Type: "string", Enum: []any{"breakfast", "lunch", "dinner", "snack"}},
			"notes":    {Type: "string"},
			"items":    {Type: "array", Items: item},

			"symptomName": {Type: "string"},
			"severity":    {Type: "integer", Description: "1..10"},
			"time":        {Type: "string", Description: "HH:MM"},

			"name":           {Type: "string"},
			"dosage":         {Type: "number"},
			"unit":           {Type: "string"},
			"doseCount":      {Type: "number"},
			"doseUnit":       {Type: "string"},
			"strengthAmount": {Type: "number"},
			"strengthUnit":   {Type: "string"},

			"bedtime":  {Type: "string"},
			"wakeTime": {Type: "string"},
			"quality":  {Type: "integer", Description: "1..5"},
			"factors":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},

			"quantity":   {Type: "number"},
			"category":   {Type: "string"},
			"targetType": {Type: "string", Description: "Entry kind for delete actions"},
		},
		Required: []string{"kind", "title"},
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message": {Type: "string", Description: "What the assistant says back, <= 2 sentences"},
			"decision": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"intent":         {Type: "string", Enum: []any{"track", "edit", "question", "chitchat"}},
					"apply":          {Type: "string", Enum: []any{"none", "confirm", "auto"}},
					"actionHandling": {Type: "string", Enum: []any{"keep", "clear", "replace"}},
				},
				Required: []string{"apply", "actionHandling"},
			},
			"actions": {Type: "array", Items: actionSchema},
		},
		Required: []string{"message", "decision"},
	}
}

// SystemPrompt renders the full planning contract, schema included.
func SystemPrompt() string {
	schema, _ := json.MarshalIndent(ResponseSchema(), "", "  ")
	return fmt.Sprintf(systemPromptTemplate, string(schema))
}

const systemPromptTemplate = `You are the planning brain of a hands-free health tracker. The user speaks; you decide what they want tracked and propose structured actions.

GOAL
Turn the user's utterance into tracking actions (meals, symptoms, supplements, sleep, shopping list items, or deletions of recent entries), plus a short spoken reply.

OUTPUT CONTRACT
- Your response must be ONE valid JSON object only (no extra text, no markdown, no code fences). Start with '{' and end with '}'.
- UTF-8, no trailing commas.
- It must validate against this JSON Schema:
%s

DECISION RULES
- "apply": "none" when you only answered a question or chatted; "confirm" when you propose actions the user has not yet approved; "auto" only when the user explicitly told you to commit (e.g. "yes, log it").
- "actionHandling": "keep" leaves pending actions untouched (questions, chitchat); "replace" swaps them for your new proposals (also use "replace" when correcting earlier proposals); "clear" discards pending proposals (user said never mind).
- For edits or deletes of saved data, pick the entryId from the recent entries context. Never invent ids.

ACTION RULES
- One action per thing tracked. A meal with several foods is ONE meal action with several items.
- For meal items set "label" to what the user said and "foodQuery" to a clean database search phrase ("2 scrambled eggs" -> label "scrambled eggs", foodQuery "scrambled eggs").
- Do not compute nutrition. Do not guess grams unless the user said an amount.
- Omit fields you have no information for. Never output placeholder values.

REMINDERS
- The reply in "message" is spoken aloud: short, natural, no lists or JSON.
- If the utterance is ambiguous, ask one clarifying question with apply "none" and actionHandling "keep".`

// ConsentPrompt is the tier-2 classifier contract for short consent replies.
const ConsentPrompt = `The user was just asked to confirm pending tracking actions and replied with a short phrase. Classify the reply.

Answer with exactly one word:
- confirm (they agree to proceed)
- cancel (they decline or back out)
- new_instruction (they said something else: a correction, an addition, a question)

No punctuation, no explanation.`
