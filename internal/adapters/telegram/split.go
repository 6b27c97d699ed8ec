package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет готовое уведомление на части в пределах лимита Telegram.
// Уведомление состоит из блоков, разделённых пустой строкой: заголовок, блок
// изменений, цитата комментария. Граница части выбирается сначала по границе
// блока, затем по любому переводу строки, чтобы строки цитаты не рвались
// посередине.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			appendPart(&parts, runes[start:])
			break
		}

		split := splitPoint(runes, start, end)
		appendPart(&parts, runes[start:split])

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

// splitPoint ищет границу в окне (start, end]: последнюю пустую строку, а если
// блок целиком не помещается — последний перевод строки. Текст без переводов
// строки режется по лимиту.
func splitPoint(runes []rune, start, end int) int {
	newline := end
	for i := end; i > start+1; i-- {
		if runes[i-1] != '\n' {
			continue
		}
		if newline == end {
			newline = i
		}
		if runes[i-2] == '\n' {
			return i
		}
	}
	return newline
}

func appendPart(parts *[]string, runes []rune) {
	if part := strings.Trim(string(runes), "\n"); part != "" {
		*parts = append(*parts, part)
	}
}
