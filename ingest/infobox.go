package ingest

import (
	"regexp"
	"strings"
)

// 列表分隔符：infobox 的列表值按此确定性分隔符连接。
const listSeparator = "; "

var infoboxOpenRe = regexp.MustCompile(`(?i)\{\{\s*infobox\b`)

// extractInfobox 抽取页面首个 infobox 块，返回扁平元数据映射和移除了
// 该块的剩余标记。嵌套字段展开为点号键（infobox.stats.points），
// 键统一小写，重复键后写覆盖先写。
func extractInfobox(markup string) (map[string]string, string) {
	loc := infoboxOpenRe.FindStringIndex(markup)
	if loc == nil {
		return map[string]string{}, markup
	}

	end := matchBraces(markup, loc[0])
	if end < 0 {
		// 括号不配对：当作普通模板留给后续剥除
		return map[string]string{}, markup
	}

	block := markup[loc[0]:end]
	rest := markup[:loc[0]] + markup[end:]

	meta := make(map[string]string)
	flattenTemplate(block, "", meta)
	return meta, rest
}

// matchBraces 从 start 处的 "{{" 起配对花括号，返回闭合后的偏移；不配对返回 -1。
func matchBraces(s string, start int) int {
	depth := 0
	for i := start; i < len(s)-1; i++ {
		switch {
		case s[i] == '{' && s[i+1] == '{':
			depth++
			i++
		case s[i] == '}' && s[i+1] == '}':
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// flattenTemplate 解析一个 {{...}} 模板体，把字段写入 meta。
// 顶层标量字段用裸键（homeworld）；嵌套模板字段展开为点号键，
// 根锚定在 "infobox"（infobox.stats.points）。
func flattenTemplate(block, prefix string, meta map[string]string) {
	body := strings.TrimSuffix(strings.TrimPrefix(block, "{{"), "}}")

	for _, field := range splitTopLevel(body, '|') {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue // 模板名或位置参数，不构成键值字段
		}
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		if key == "" {
			continue
		}

		fullKey := key
		childPrefix := "infobox." + key
		if prefix != "" {
			fullKey = prefix + "." + key
			childPrefix = fullKey
		}
		if inner := infoboxAnyTemplate(val); inner != "" {
			flattenTemplate(inner, childPrefix, meta)
			continue
		}
		if cleaned := cleanFieldValue(val); cleaned != "" {
			meta[fullKey] = cleaned
		}
	}
}

// infoboxAnyTemplate 当值恰好是一个嵌套模板时返回该模板体，否则返回空串。
func infoboxAnyTemplate(val string) string {
	if !strings.HasPrefix(val, "{{") {
		return ""
	}
	if end := matchBraces(val, 0); end == len(val) {
		return val
	}
	return ""
}

// splitTopLevel 在括号深度为零处按 sep 切分。
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch {
		case i+1 < len(s) && s[i] == '{' && s[i+1] == '{':
			depth++
			i++
		case i+1 < len(s) && s[i] == '}' && s[i+1] == '}':
			depth--
			i++
		case i+1 < len(s) && s[i] == '[' && s[i+1] == '[':
			depth++
			i++
		case i+1 < len(s) && s[i] == ']' && s[i+1] == ']':
			depth--
			i++
		case s[i] == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	parts = append(parts, s[last:])
	return parts
}

var brTagRe = regexp.MustCompile(`(?i)<br\s*/?>`)

// cleanFieldValue 清洗字段值：剥链接与标记，列表按确定性分隔符连接。
func cleanFieldValue(val string) string {
	val = brTagRe.ReplaceAllString(val, "\n")

	var items []string
	for _, line := range strings.Split(val, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "*#"))
		if line == "" {
			continue
		}
		line = wikiLinkRe.ReplaceAllStringFunc(line, func(m string) string {
			sub := wikiLinkRe.FindStringSubmatch(m)
			if sub[2] != "" {
				return sub[2]
			}
			return sub[1]
		})
		line = boldItalicRe.ReplaceAllString(line, "")
		line = htmlTagRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return strings.Join(items, listSeparator)
}
