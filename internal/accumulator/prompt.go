package accumulator

import (
	"fmt"

	"mirix/internal/llm"
	"mirix/internal/transcriber"
)

// BuildPrompt assembles the ordered multi-modal prompt described in
// spec §4.3.1 from a flush's ready observations. directive is appended
// last and differs between meta-router mode and fan-out mode (spec
// §4.4); callers supply it so this function stays agnostic of dispatch
// strategy.
func BuildPrompt(ready []ReadyObservation, tr transcriber.Transcriber, snippet *Snippet, directive string) ([]llm.PromptPart, error) {
	var parts []llm.PromptPart

	var images []TimestampedBlob
	var audio []transcriber.AudioSegment
	var texts []ReadyObservation
	for _, r := range ready {
		images = append(images, r.Images...)
		audio = append(audio, r.Audio...)
		if r.Text != "" {
			texts = append(texts, r)
		}
	}

	if len(images) > 0 {
		parts = append(parts, llm.PromptPart{Text: "The following are the screenshots from the user's computer:"})
		for i, img := range images {
			parts = append(parts, llm.PromptPart{Text: fmt.Sprintf("Timestamp: %s Image Index %d:", img.Timestamp.Format(tsLayout), i)})
			parts = append(parts, llm.PromptPart{CloudFileURI: img.Blob.URI})
		}
	}

	if len(audio) > 0 {
		transcript, err := tr.Process(audio)
		if err != nil {
			return nil, fmt.Errorf("accumulator: transcribe: %w", err)
		}
		parts = append(parts, llm.PromptPart{Text: "The following are the voice recordings and their transcriptions:\n" + transcript})
	}

	if len(texts) > 0 {
		parts = append(parts, llm.PromptPart{Text: "The following are text messages from the user:"})
		for _, r := range texts {
			parts = append(parts, llm.PromptPart{Text: fmt.Sprintf("Timestamp: %s Text:\n%s", r.Timestamp.Format(tsLayout), r.Text)})
		}
	}

	if snippet != nil {
		parts = append(parts, llm.PromptPart{Text: fmt.Sprintf(
			"A concurrent conversation was happening at %s -- %s said: %s",
			snippet.Timestamp.Format(tsLayout), snippet.Role, snippet.Text)})
	}

	parts = append(parts, llm.PromptPart{Text: directive})
	return parts, nil
}

const tsLayout = "2006-01-02T15:04:05Z07:00"

// RoutedDirective is the system directive used in meta-router mode
// (spec §4.3.1 part 5): ask the meta agent to decide which memory
// types to update and call trigger_memory_update.
const RoutedDirective = "Decide which of the six memory types (episodic, semantic, procedural, " +
	"resource, knowledge_vault, core) this content should update, then call trigger_memory_update " +
	"with the matching memory_types and per-type instructions."

// FanOutDirective is the system directive used in direct fan-out mode:
// every memory agent receives the identical prompt and extracts only
// what matches its own type.
const FanOutDirective = "Extract only the information relevant to your own memory type from the " +
	"content above, using your own insert/update tools. Ignore anything that belongs to a " +
	"different memory type."
