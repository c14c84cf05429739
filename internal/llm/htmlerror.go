/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const maxErrorMessageLen = 500

// describeErrorBody turns an error response body into one readable line.
// Gateways and proxies in front of model servers often answer with HTML.
func describeErrorBody(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if msg := apiErrorMessage(trimmed); msg != "" {
		return clip(msg)
	}

	if isHTML(contentType, trimmed) {
		return clip(htmlToText(trimmed))
	}

	return clip(collapseWhitespace(string(trimmed)))
}

// apiErrorMessage extracts error.message from OpenAI/Anthropic style JSON
func apiErrorMessage(body []byte) string {
	if body[0] != '{' {
		return ""
	}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return ""
	}

	var detail struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(payload.Error, &detail); err == nil && detail.Message != "" {
		return detail.Message
	}

	// Ollama reports {"error": "..."}
	var plain string
	if err := json.Unmarshal(payload.Error, &plain); err == nil {
		return plain
	}
	return ""
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	prefix := strings.ToLower(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}

// htmlToText returns "<title>: <body as markdown>", or whichever part exists
func htmlToText(body []byte) string {
	var title string
	content := body

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
		doc.Find("head, script, style").Remove()
		if html, err := doc.Find("body").Html(); err == nil && strings.TrimSpace(html) != "" {
			content = []byte(html)
		}
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(content))
	if err != nil {
		markdown = ""
	}
	text := collapseWhitespace(markdown)

	// Gateways usually repeat the title as the first heading
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "# "), title))

	switch {
	case title != "" && text != "":
		return title + ": " + text
	case title != "":
		return title
	default:
		return text
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen] + "..."
}
