// SPDX-License-Identifier: EPL-2.0

// Package document defines the runbook document model: an ordered, recursive
// tree of typed blocks and the closed set of context items a block can
// contribute. The resolver that renders templates for a given block lives in
// internal/context; this package only declares the Resolver interface.
package document

import "github.com/google/uuid"

// Document is an ordered, recursive tree of blocks. The document owns its
// blocks; blocks never reference one another by id for ordering purposes —
// ordering is document order, produced by Flatten.
type Document struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Version  int       `json:"version"`
	Blocks   []Block   `json:"-"`
	Children map[uuid.UUID][]Block
}

// NewDocument creates an empty document with a fresh id.
func NewDocument(name string) *Document {
	return &Document{ID: uuid.New(), Name: name, Version: 1, Children: make(map[uuid.UUID][]Block)}
}

// Flatten produces a linear preorder list of the document's blocks,
// descending into each block's children before moving to its sibling.
func (d *Document) Flatten() []Block {
	var out []Block
	var walk func([]Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			out = append(out, b)
			walk(d.Children[b.BlockID()])
		}
	}
	walk(d.Blocks)
	return out
}

// IndexOf returns the position of block id in the flattened document order,
// or -1 if absent.
func (d *Document) IndexOf(id uuid.UUID) int {
	for i, b := range d.Flatten() {
		if b.BlockID() == id {
			return i
		}
	}
	return -1
}

// BlockByID returns the block with the given id, or false if absent.
func (d *Document) BlockByID(id uuid.UUID) (Block, bool) {
	for _, b := range d.Flatten() {
		if b.BlockID() == id {
			return b, true
		}
	}
	return nil, false
}

// Preceding returns the blocks that precede id in document order (not
// including id itself). Used to build the resolver for a given block.
func (d *Document) Preceding(id uuid.UUID) []Block {
	flat := d.Flatten()
	for i, b := range flat {
		if b.BlockID() == id {
			return flat[:i]
		}
	}
	return flat
}
