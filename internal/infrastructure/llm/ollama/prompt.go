package ollama

const ocrPrompt = `Transcribe all text visible in this image exactly as written.
Keep line breaks. Return only the transcribed text, nothing else.`

func buildIntentPrompt(query string) string {
	return "Classify: " + query + "\nIs it 'QA' (question) or 'Report' (generate report)? Answer only 'QA' or 'Report'."
}
