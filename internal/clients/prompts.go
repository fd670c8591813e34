package clients

// FilteredMarker is returned in place of text when a provider withholds
// output for moderation reasons.
const FilteredMarker = "[filtered]"

// VisionPrompt asks a vision model for a verbatim page transcription
const VisionPrompt = `You are an OCR/ICR engine for trade finance documents.
Transcribe ALL visible text on this page exactly as printed or handwritten.
Keep the original line order. Reproduce tables row by row with cells separated by " | ".
Include stamps, seals, signatures labels, reference numbers and currency amounts.
Do not translate, summarize or explain. Return only the transcribed text.`
