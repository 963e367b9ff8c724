// Package outline turns a rendered legal document into a navigable table of
// contents and answers which section is in view for a given scroll position.
//
// A Document is immutable once parsed. When the underlying HTML changes
// (another lease template loads) the caller parses it again.
package outline

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxLevel is the deepest heading level indexed (h1..h4).
const MaxLevel = 4

// Section is one table-of-contents entry.
type Section struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Level     int     `json:"level"`
	OffsetTop float32 `json:"offset_top"`
}

// BlockKind categorises a laid-out block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
)

// Block is one vertical slab of document text.
type Block struct {
	Kind      BlockKind
	Level     int
	Text      string
	SectionID string
	OffsetTop float32
	Height    float32
}

// Document is a parsed document with its outline and block layout.
type Document struct {
	root     *html.Node
	sections []Section
	blocks   []Block
	height   float32
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1,
	atom.H2: 2,
	atom.H3: 3,
	atom.H4: 4,
}

// leafBlocks are elements whose whole text content forms one block.
var leafBlocks = map[atom.Atom]BlockKind{
	atom.P:          BlockParagraph,
	atom.Pre:        BlockParagraph,
	atom.Blockquote: BlockParagraph,
	atom.Dt:         BlockParagraph,
	atom.Dd:         BlockParagraph,
	atom.Td:         BlockParagraph,
	atom.Th:         BlockParagraph,
	atom.Caption:    BlockParagraph,
	atom.Li:         BlockListItem,
}

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Template: true,
	atom.Noscript: true,
}

// ParseString is Parse over a string.
func ParseString(s string, m Measurer) (*Document, error) {
	return Parse(strings.NewReader(s), m)
}

// Parse reads HTML, assigns ids to headings that lack one and lays out the
// document with m. A nil Measurer uses DefaultMeasurer.
func Parse(r io.Reader, m Measurer) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if m == nil {
		m = DefaultMeasurer()
	}

	d := &Document{root: root}
	ids := collectIDs(root)
	var (
		y       float32
		current string
		ordinal int
	)

	emit := func(b Block) {
		b.SectionID = current
		b.OffsetTop = y
		b.Height = m.Measure(b)
		y += b.Height
		d.blocks = append(d.blocks, b)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := collapse(n.Data); text != "" {
				emit(Block{Kind: BlockParagraph, Text: text})
			}
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
			if level, ok := headingLevels[n.DataAtom]; ok {
				id := attr(n, "id")
				if id == "" {
					id = uniqueID(ids, fmt.Sprintf("section-%d", ordinal))
					setAttr(n, "id", id)
				}
				ordinal++
				current = id
				title := collapse(textContent(n))
				emit(Block{Kind: BlockHeading, Level: level, Text: title})
				d.sections = append(d.sections, Section{
					ID:        id,
					Title:     title,
					Level:     level,
					OffsetTop: d.blocks[len(d.blocks)-1].OffsetTop,
				})
				return
			}
			if kind, ok := leafBlocks[n.DataAtom]; ok {
				if text := collapse(textContent(n)); text != "" {
					emit(Block{Kind: kind, Text: text})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	d.height = y
	return d, nil
}

// Sections returns the outline in document order.
func (d *Document) Sections() []Section {
	out := make([]Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// Blocks returns the laid-out blocks in document order.
func (d *Document) Blocks() []Block {
	out := make([]Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Height is the total laid-out height.
func (d *Document) Height() float32 {
	return d.height
}

// Section looks a section up by id.
func (d *Document) Section(id string) (Section, bool) {
	for _, s := range d.sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// HTML renders the document back, including the assigned heading ids.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return buf.String(), nil
}

// ExtractSections parses s and returns only its outline.
func ExtractSections(s string) ([]Section, error) {
	d, err := ParseString(s, nil)
	if err != nil {
		return nil, err
	}
	return d.Sections(), nil
}

func collectIDs(root *html.Node) map[string]bool {
	ids := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attr(n, "id"); id != "" {
				ids[id] = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return ids
}

func uniqueID(ids map[string]bool, base string) string {
	id := base
	for i := 2; ids[id]; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	ids[id] = true
	return id
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
