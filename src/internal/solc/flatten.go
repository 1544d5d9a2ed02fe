package solc

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// StandardInputJSON 标准 JSON 输入格式，浏览器返回的多文件源码即此格式
type StandardInputJSON struct {
	Language string                `json:"language"`
	Sources  map[string]SourceFile `json:"sources"`
	Settings map[string]any        `json:"settings,omitempty"`
}

type SourceFile struct {
	Content string `json:"content"`
}

var (
	importRe = regexp.MustCompile(`(?m)^\s*import\s+[^;]*?["']([^"']+)["'][^;]*;[ \t]*\n?`)
	spdxRe   = regexp.MustCompile(`(?m)^\s*//\s*SPDX-License-Identifier:.*\n?`)
	pragmaRe = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	semverRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
)

// IsJSONSource 检查源代码是否为多文件 JSON 格式
func IsJSONSource(source string) bool {
	trimmed := strings.TrimSpace(source)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "\"content\"")
}

// ParseSources 解析多文件 JSON，兼容 {{...}} 包裹和直接的 sources 映射两种形式
func ParseSources(source string) (map[string]string, error) {
	normalized := normalizeJSONSource(source)

	var input StandardInputJSON
	if err := json.Unmarshal([]byte(normalized), &input); err != nil || len(input.Sources) == 0 {
		var direct map[string]SourceFile
		if err := json.Unmarshal([]byte(normalized), &direct); err != nil || len(direct) == 0 {
			return nil, fmt.Errorf("invalid multi-file JSON format")
		}
		input.Sources = direct
	}

	out := make(map[string]string, len(input.Sources))
	for p, f := range input.Sources {
		out[cleanPath(p)] = strings.ReplaceAll(f.Content, "\r\n", "\n")
	}
	return out, nil
}

// Flatten 返回单文件源码。普通源码原样返回，多文件 JSON 按 import 依赖顺序拼接
func Flatten(source string) (string, error) {
	if !IsJSONSource(source) {
		return source, nil
	}
	files, err := ParseSources(source)
	if err != nil {
		return "", err
	}
	return FlattenFiles(files), nil
}

// FlattenFiles 依赖在前拼接文件，去掉 import、重复的 SPDX 行并合并 pragma
func FlattenFiles(files map[string]string) string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(files))
	var ordered []string
	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, m := range importRe.FindAllStringSubmatch(files[name], -1) {
			if dep := resolveImport(files, name, m[1]); dep != "" {
				visit(dep)
			}
		}
		ordered = append(ordered, name)
	}
	for _, n := range names {
		visit(n)
	}

	var b strings.Builder
	b.WriteString("// SPDX-License-Identifier: UNLICENSED\n")
	for _, n := range ordered {
		body := importRe.ReplaceAllString(files[n], "")
		body = spdxRe.ReplaceAllString(body, "")
		fmt.Fprintf(&b, "\n// File: %s\n", n)
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}
	return cleanupPragmas(b.String())
}

func resolveImport(files map[string]string, from, target string) string {
	candidates := []string{cleanPath(target)}
	if strings.HasPrefix(target, ".") {
		candidates = append([]string{cleanPath(path.Join(path.Dir(from), target))}, candidates...)
	}
	for _, c := range candidates {
		if _, ok := files[c]; ok {
			return c
		}
	}
	// remapping 之后的路径只能按后缀匹配
	base := cleanPath(target)
	for n := range files {
		if strings.HasSuffix(n, "/"+base) || strings.HasSuffix(base, "/"+n) {
			return n
		}
	}
	return ""
}

func cleanPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return path.Clean(p)
}

// normalizeJSONSource 规范化 JSON 字符串
func normalizeJSONSource(jsonStr string) string {
	trimmed := strings.TrimSpace(jsonStr)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}

// cleanupPragmas 去掉所有 pragma solidity，只在 SPDX 之后保留最高版本
func cleanupPragmas(source string) string {
	highest := ExtractPragmaVersion(source)
	if highest == "" {
		return source
	}

	cleaned := pragmaRe.ReplaceAllString(source, "")
	finalPragma := fmt.Sprintf("pragma solidity ^%s;", highest)

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		if strings.Contains(line, "SPDX-License-Identifier") {
			out := append([]string{}, lines[:i+1]...)
			out = append(out, finalPragma)
			return strings.Join(append(out, lines[i+1:]...), "\n")
		}
	}
	return finalPragma + "\n" + cleaned
}
