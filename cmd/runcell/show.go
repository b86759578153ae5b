// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"runcell/pkg/document"
	"runcell/pkg/mdrb"
)

var showCmd = &cobra.Command{
	Use:   "show <runbook.mdrb>",
	Short: "Render a runbook's markdown and editor content for reading",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	doc, err := mdrb.Import(string(src))
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("build renderer: %w", err)
	}

	for _, block := range doc.Flatten() {
		content, ok := displayContent(block)
		if !ok {
			continue
		}
		out, err := renderer.Render(content)
		if err != nil {
			return fmt.Errorf("render block %s: %w", block.BlockID(), err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	}
	return nil
}

// displayContent returns the markdown body of a display-only block, if any.
func displayContent(b document.Block) (string, bool) {
	switch v := b.(type) {
	case *document.EditorBlock:
		return v.Content, true
	case *document.MarkdownRenderBlock:
		return v.Content, true
	default:
		return "", false
	}
}
