// SPDX-License-Identifier: EPL-2.0

// Package mdrb implements the markdown import/export described in
// spec.md §6: a front-matter header, headings and paragraphs folding into
// display blocks, and fenced code blocks whose info string starts with "@"
// decoding into typed document.Block values. Import/export is bidirectional
// but explicitly non-round-tripping — whitespace and exact formatting are
// not preserved.
package mdrb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"runcell/pkg/document"
)

func newID() uuid.UUID { return uuid.New() }

// frontMatter is the document-level header: "--- version id name ---".
type frontMatter struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version int    `yaml:"version"`
}

// Import parses a markdown runbook into a document.Document. Headings and
// paragraphs become document.EditorBlock display content (the closed block
// type set has no dedicated heading/paragraph types); fenced code blocks
// whose info string starts with "@<type>" decode as that typed block, with
// an optional nested front-matter header (a "---"-delimited YAML block as
// the fence's first lines) supplying the block's non-content fields.
func Import(src string) (*document.Document, error) {
	lines := strings.Split(src, "\n")

	fm, body, err := splitFrontMatter(lines)
	if err != nil {
		return nil, fmt.Errorf("mdrb: %w", err)
	}

	doc := document.NewDocument(fm.Name)
	if fm.ID != "" {
		if id, err := uuid.Parse(fm.ID); err == nil {
			doc.ID = id
		}
	}
	if fm.Version != 0 {
		doc.Version = fm.Version
	}

	blocks, err := parseBody(body)
	if err != nil {
		return nil, fmt.Errorf("mdrb: %w", err)
	}
	doc.Blocks = blocks
	return doc, nil
}

func splitFrontMatter(lines []string) (frontMatter, []string, error) {
	var fm frontMatter
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return fm, lines, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			header := strings.Join(lines[1:i], "\n")
			if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
				return fm, nil, fmt.Errorf("parse front matter: %w", err)
			}
			return fm, lines[i+1:], nil
		}
	}
	return fm, nil, fmt.Errorf("unterminated front matter")
}

func parseBody(lines []string) ([]document.Block, error) {
	var blocks []document.Block
	var paragraph []string

	flushParagraph := func() {
		text := strings.TrimSpace(strings.Join(paragraph, "\n"))
		paragraph = paragraph[:0]
		if text == "" {
			return
		}
		blocks = append(blocks, &document.EditorBlock{
			Base:    document.Base{ID: newID(), Type: document.BlockEditor},
			Content: text,
		})
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			flushParagraph()
			info := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			fenceEnd := i + 1
			for fenceEnd < len(lines) && strings.TrimSpace(lines[fenceEnd]) != "```" {
				fenceEnd++
			}
			fenceBody := lines[i+1 : min(fenceEnd, len(lines))]
			block, err := parseTypedFence(info, fenceBody)
			if err != nil {
				return nil, err
			}
			if block != nil {
				blocks = append(blocks, block)
			}
			i = fenceEnd + 1
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			flushParagraph()
			blocks = append(blocks, &document.EditorBlock{
				Base:    document.Base{ID: newID(), Type: document.BlockEditor},
				Content: trimmed,
			})
			i++
			continue
		}

		if trimmed == "" {
			flushParagraph()
			i++
			continue
		}

		paragraph = append(paragraph, line)
		i++
	}
	flushParagraph()
	return blocks, nil
}

// parseTypedFence decodes a fenced block whose info string is "@<type>"
// into the matching document.Block. A nested "---"-delimited header inside
// the fence supplies the block's JSON fields; non-"@" fences are treated as
// plain content and folded into an EditorBlock.
func parseTypedFence(info string, body []string) (document.Block, error) {
	if !strings.HasPrefix(info, "@") {
		content := strings.Join(body, "\n")
		return &document.EditorBlock{
			Base:    document.Base{ID: newID(), Type: document.BlockEditor},
			Content: "```" + info + "\n" + content + "\n```",
		}, nil
	}
	blockType := document.BlockType(strings.TrimPrefix(info, "@"))

	extra, contentLines := splitNestedHeader(body)

	fields := map[string]any{
		"id":   newID().String(),
		"type": string(blockType),
	}
	for k, v := range extra {
		fields[k] = v
	}
	if content := strings.TrimSpace(strings.Join(contentLines, "\n")); content != "" {
		fields["code"] = content
		fields["content"] = content
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s block fields: %w", blockType, err)
	}
	return document.ParseBlock(raw)
}

// splitNestedHeader separates a fence body's optional "---"-delimited YAML
// header (block-specific fields) from its remaining content lines.
func splitNestedHeader(body []string) (map[string]any, []string) {
	if len(body) == 0 || strings.TrimSpace(body[0]) != "---" {
		return nil, body
	}
	for i := 1; i < len(body); i++ {
		if strings.TrimSpace(body[i]) == "---" {
			var extra map[string]any
			raw := strings.Join(body[1:i], "\n")
			_ = yaml.Unmarshal([]byte(raw), &extra)
			return extra, body[i+1:]
		}
	}
	return nil, body
}

// Export renders doc back to the markdown dialect Import understands.
func Export(doc *document.Document) (string, error) {
	var b strings.Builder
	w := bufio.NewWriter(&b)

	fmt.Fprintf(w, "---\nid: %s\nname: %s\nversion: %d\n---\n\n", doc.ID, doc.Name, doc.Version)

	for _, block := range doc.Flatten() {
		if err := exportBlock(w, block); err != nil {
			return "", fmt.Errorf("mdrb: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("mdrb: flush: %w", err)
	}
	return b.String(), nil
}

func exportBlock(w *bufio.Writer, block document.Block) error {
	switch b := block.(type) {
	case *document.EditorBlock:
		fmt.Fprintf(w, "%s\n\n", b.Content)
		return nil
	case *document.MarkdownRenderBlock:
		fmt.Fprintf(w, "%s\n\n", b.Content)
		return nil
	default:
		raw, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("marshal %s block: %w", block.BlockType(), err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("unmarshal %s block fields: %w", block.BlockType(), err)
		}
		delete(fields, "id")
		delete(fields, "type")
		content, _ := fields["code"].(string)
		if content == "" {
			content, _ = fields["content"].(string)
		}
		delete(fields, "code")
		delete(fields, "content")

		fmt.Fprintf(w, "```@%s\n", block.BlockType())
		if len(fields) > 0 {
			header, err := yaml.Marshal(fields)
			if err == nil {
				fmt.Fprintf(w, "---\n%s---\n", header)
			}
		}
		if content != "" {
			fmt.Fprintf(w, "%s\n", content)
		}
		fmt.Fprintf(w, "```\n\n")
		return nil
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
