package service

import (
	"strings"

	"streamchat/model"
)

// AssembleParts converts the completed step records of one generation into
// the canonical ordered content list: tool invocations first, then reasoning,
// then text, then generated files. A call whose result was never captured is
// still emitted, with a null result; dropping it would leave the stored
// conversation inconsistent with what the model saw. An all-empty generation
// assembles to an empty list, which is a valid completed message.
func AssembleParts(steps []StepRecord) []model.ContentPart {
	var (
		parts     []model.ContentPart
		reasoning strings.Builder
		text      strings.Builder
		files     []GeneratedFile
	)

	for _, step := range steps {
		outcomes := step.Outcomes
		for i, call := range step.Result.ToolCalls {
			part := model.ContentPart{
				Type:       model.PartToolInvocation,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				State:      model.ToolStateCall,
				Args:       call.Args,
			}
			if i < len(outcomes) && outcomes[i].Result != nil {
				part.Result = outcomes[i].Result
				part.State = model.ToolStateResult
				if outcomes[i].Errored {
					part.State = model.ToolStateError
				}
			}
			parts = append(parts, part)
		}
		reasoning.WriteString(step.Result.Reasoning)
		text.WriteString(step.Result.Text)
		files = append(files, step.Result.Files...)
	}

	if reasoning.Len() > 0 {
		parts = append(parts, model.ContentPart{Type: model.PartReasoning, Text: reasoning.String()})
	}
	if text.Len() > 0 {
		parts = append(parts, model.ContentPart{Type: model.PartText, Text: text.String()})
	}
	for _, f := range files {
		parts = append(parts, model.ContentPart{Type: model.PartGeneratedFile, MimeType: f.MimeType, Data: f.Data})
	}
	return parts
}

// RecoveredParts builds the content list the reconciler stores for an
// abandoned generation: whatever partial reasoning and text the ledger row
// held, in canonical order.
func RecoveredParts(reasoning, text string) []model.ContentPart {
	var parts []model.ContentPart
	if reasoning != "" {
		parts = append(parts, model.ContentPart{Type: model.PartReasoning, Text: reasoning})
	}
	if text != "" {
		parts = append(parts, model.ContentPart{Type: model.PartText, Text: text})
	}
	return parts
}
