package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WorkflowNode is one node of a ComfyUI prompt graph.
type WorkflowNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Workflow is a ComfyUI prompt graph keyed by node id.
type Workflow map[string]*WorkflowNode

// WorkflowParams binds a workflow template to one transfer request.
type WorkflowParams struct {
	ChildPhotoFilename   string
	IllustrationFilename string
	MaskFilename         string
	Prompt               string
	NegativePrompt       string
	Seed                 *int64
}

// BuildWorkflow parameterizes a workflow template. LoadImage nodes are
// bound by the filename hint in their template value ("photo", "mask",
// "illustr"), CLIPTextEncode nodes by whether their template text is a
// subject prompt or a negative prompt, and KSampler nodes get the seed.
func BuildWorkflow(template []byte, p WorkflowParams) (Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(template, &wf); err != nil {
		return nil, fmt.Errorf("invalid workflow template: %w", err)
	}

	negative := p.NegativePrompt
	if negative == "" {
		negative = DefaultNegativePrompt
	}

	for id, node := range wf {
		if node == nil || node.Inputs == nil {
			return nil, fmt.Errorf("workflow node %s has no inputs", id)
		}

		switch node.ClassType {
		case "LoadImage":
			current, _ := node.Inputs["image"].(string)
			hint := strings.ToLower(current)
			switch {
			case strings.Contains(hint, "photo"):
				node.Inputs["image"] = p.ChildPhotoFilename
			case strings.Contains(hint, "mask"):
				node.Inputs["image"] = p.MaskFilename
			case strings.Contains(hint, "illustr"):
				node.Inputs["image"] = p.IllustrationFilename
			}

		case "CLIPTextEncode":
			current, _ := node.Inputs["text"].(string)
			if isSubjectPromptSlot(current) {
				node.Inputs["text"] = p.Prompt
			} else {
				node.Inputs["text"] = negative
			}

		case "KSampler":
			if p.Seed != nil {
				node.Inputs["seed"] = *p.Seed
			}

		case "ImageToMask":
			// The mask arrives as an explicit RGB image; reading the
			// alpha channel of a 3-channel tensor crashes the graph.
			if ch, _ := node.Inputs["channel"].(string); ch == "alpha" {
				node.Inputs["channel"] = "red"
			}
		}
	}

	return wf, nil
}

// isSubjectPromptSlot reports whether a template text value is the positive
// (subject) prompt slot. Templates ship with a placeholder subject prompt
// or an empty slot; anything else is the pre-filled negative prompt.
func isSubjectPromptSlot(current string) bool {
	if current == "" {
		return true
	}
	low := strings.ToLower(current)
	return strings.Contains(low, "girl") || strings.Contains(low, "boy")
}
