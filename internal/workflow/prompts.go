package workflow

import (
	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/outline"
)

// planPromptData is the data of the outline template
type planPromptData struct {
	Instruction string
	MinWords    int
	MaxWords    int
	Sample1     int
	Sample2     int
}

// writePromptData is the data of the section template
type writePromptData struct {
	Instruction string
	Plan        string // the whole outline
	Text        string // prose committed so far
	Step        string // outline line of the section to write
}

func (w *Workflow) planMessages() ([]api.Message, error) {
	wr := w.cfg.WordRequirement
	prompt, err := w.planTmpl.Render(planPromptData{
		Instruction: w.state.Instruction,
		MinWords:    wr.MinWords,
		MaxWords:    wr.MaxWords,
		Sample1:     wr.Sample1,
		Sample2:     wr.Sample2,
	})
	if err != nil {
		return nil, err
	}
	return w.messages(prompt), nil
}

func (w *Workflow) writeMessages(entry outline.Entry) ([]api.Message, error) {
	prompt, err := w.writeTmpl.Render(writePromptData{
		Instruction: w.state.Instruction,
		Plan:        w.state.OutlineText,
		Text:        w.state.Prose,
		Step:        entry.Line(),
	})
	if err != nil {
		return nil, err
	}
	return w.messages(prompt), nil
}

func (w *Workflow) messages(prompt string) []api.Message {
	var msgs []api.Message
	if w.cfg.PromptTemplates.SystemPrompt != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: w.cfg.PromptTemplates.SystemPrompt})
	}
	return append(msgs, api.Message{Role: "user", Content: prompt})
}
