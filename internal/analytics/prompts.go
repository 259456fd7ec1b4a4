package analytics

// SummarySystemPrompt instructs the model that writes the daily narrative.
const SummarySystemPrompt = `You are a group chat assistant who summarizes the day's conversation.
Describe the main topics, the most interesting discussions and the overall mood in a concise, friendly tone.
Use no more than 200 words.`

// SummaryRequestHeader precedes the transcript in the user turn.
const SummaryRequestHeader = "Please summarize the following group chat:\n\n"

// Default texts used when no narrative can be produced.
const (
	DefaultNoMessagesSummary = "No messages today."
	DefaultFallbackSummary   = "The AI summary could not be generated, please try again later."
)
