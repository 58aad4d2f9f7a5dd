package recipe

import "strings"

const fence = "```"

// StripCodeFence removes one optional leading fence (with an optional
// language tag such as json or JSON) and one optional trailing fence.
// Surrounding whitespace is trimmed; interior content is never changed.
func StripCodeFence(s string) string {
	body := strings.TrimSpace(s)
	if strings.HasPrefix(body, fence) {
		body = body[len(fence):]
		i := 0
		for i < len(body) && isTagByte(body[i]) {
			i++
		}
		body = body[i:]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}

func isTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_' || b == '+'
}
