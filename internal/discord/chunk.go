package discord

import "unicode/utf8"

// splitMessage cuts body into contiguous slices of at most limit characters.
// Slices never split a UTF-8 sequence and concatenate back to body.
func splitMessage(body string, limit int) []string {
	if body == "" {
		return nil
	}
	if limit <= 0 {
		return []string{body}
	}

	var chunks []string
	for len(body) > 0 {
		end, count := 0, 0
		for end < len(body) && count < limit {
			_, size := utf8.DecodeRuneInString(body[end:])
			end += size
			count++
		}
		chunks = append(chunks, body[:end])
		body = body[end:]
	}
	return chunks
}
