package gemini

import "fmt"

// All prompts instruct the model to answer with a single JSON object in the
// responseSchema shape: {"tags": [...], "summary": "...", "transcript": "..."}.

const jsonInstruction = `Respond with a single JSON object and nothing else: ` +
	`{"tags": ["..."], "summary": "..."}. ` +
	`"tags" must contain 5 or 6 lowercase single-word tags. ` +
	`"summary" must be one or two sentences.`

func textPrompt(content string) string {
	return fmt.Sprintf(
		"Analyze the following saved note and produce topical tags and a summary.\n%s\n\nNote:\n%s",
		jsonInstruction, content)
}

func linkPrompt(context string) string {
	return fmt.Sprintf(
		"Analyze the following saved web link and produce topical tags and a summary of what the page is about.\n%s\n\nLink context:\n%s",
		jsonInstruction, context)
}

func imagePrompt() string {
	return fmt.Sprintf(
		"Describe the attached image. Produce topical tags and a one-sentence summary of its subject.\n%s",
		jsonInstruction)
}

func documentPrompt() string {
	return fmt.Sprintf(
		"Analyze the attached document. Produce topical tags and a summary of its contents.\n%s",
		jsonInstruction)
}

func audioPrompt(wantTranscript bool) string {
	if wantTranscript {
		return `Transcribe the attached audio and summarize it. Respond with a single JSON object and nothing else: ` +
			`{"tags": ["..."], "summary": "...", "transcript": "..."}. ` +
			`"tags" must contain 5 or 6 lowercase single-word tags. ` +
			`"summary" must be one or two sentences. "transcript" must be the full transcription.`
	}
	return fmt.Sprintf(
		"Listen to the attached audio. Produce topical tags and a summary of its contents.\n%s",
		jsonInstruction)
}
