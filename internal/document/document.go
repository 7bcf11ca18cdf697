// Package document turns uploaded statement bytes into pages of positioned words.
package document

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrUndecodable is returned when the input cannot be turned into pages at all.
var ErrUndecodable = errors.New("document cannot be decoded")

// Word is a token with its horizontal extent and vertical position (points).
type Word struct {
	Text string
	X0   float64
	X1   float64
	Y    float64
}

// Page is one decoded page.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Words  []Word
}

// Document is a decoded upload. It only lives for one pipeline run.
type Document struct {
	Pages    []Page
	Method   string // "pdf-bbox" | "layout-text"
	Hash     string // sha256 of the input bytes
	Duration time.Duration
}

// PageCount returns the number of decoded pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Line is a row of words sharing a baseline.
type Line struct {
	Page  int
	Y     float64
	Words []Word
}

// Text joins the words with single spaces.
func (l Line) Text() string {
	parts := make([]string, len(l.Words))
	for i, w := range l.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Offsets returns the byte offset of each word inside Text().
func (l Line) Offsets() []int {
	offs := make([]int, len(l.Words))
	pos := 0
	for i, w := range l.Words {
		offs[i] = pos
		pos += len(w.Text) + 1
	}
	return offs
}

// WordsIn returns the indexes [from, to) of words overlapping the byte range
// [start, end) of Text().
func (l Line) WordsIn(start, end int) (from, to int) {
	from, to = -1, -1
	for i, off := range l.Offsets() {
		wEnd := off + len(l.Words[i].Text)
		if wEnd > start && off < end {
			if from < 0 {
				from = i
			}
			to = i + 1
		}
	}
	if from < 0 {
		return 0, 0
	}
	return from, to
}

// Lines groups the page's words into lines. Words whose Y differs by at most
// yTol from the line's first word join that line.
func (p Page) Lines(yTol float64) []Line {
	if len(p.Words) == 0 {
		return nil
	}
	words := make([]Word, len(p.Words))
	copy(words, p.Words)
	sort.SliceStable(words, func(i, j int) bool {
		if words[i].Y != words[j].Y {
			return words[i].Y < words[j].Y
		}
		return words[i].X0 < words[j].X0
	})

	var lines []Line
	cur := Line{Page: p.Index, Y: words[0].Y}
	for _, w := range words {
		if len(cur.Words) > 0 && w.Y-cur.Y > yTol {
			lines = append(lines, cur)
			cur = Line{Page: p.Index, Y: w.Y}
		}
		cur.Words = append(cur.Words, w)
	}
	lines = append(lines, cur)

	for i := range lines {
		ws := lines[i].Words
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].X0 < ws[b].X0 })
	}
	return lines
}
