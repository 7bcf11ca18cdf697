package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// layout text is monospaced; these map character cells to points
	charWidth  = 6.0
	lineHeight = 12.0
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit
	TempDir   string // where uploaded PDFs are staged; "" = os.TempDir()
}

type Decoder struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewDecoder(cfg Config, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Decoder{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner, mainly for tests.
func (d *Decoder) WithRunner(r Runner) *Decoder {
	d.runner = r
	return d
}

// Decode picks a strategy from the content: PDFs go through pdftotext -bbox,
// anything else must be UTF-8 layout text with \f page breaks.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Document, error) {
	start := time.Now()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUndecodable)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var (
		doc *Document
		err error
	)
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		doc, err = d.decodePDF(ctx, data)
	} else {
		doc, err = decodeLayoutText(data, d.cfg.MaxPages)
	}
	if err != nil {
		d.logger.Warn("document.decode.failed", "hash", hash, "error", err)
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUndecodable)
	}

	doc.Hash = hash
	doc.Duration = time.Since(start)
	d.logger.Debug("document.decode.ok",
		"method", doc.Method,
		"pages", len(doc.Pages),
		"hash", hash,
		"elapsed_ms", doc.Duration.Milliseconds(),
	)
	return doc, nil
}

func (d *Decoder) decodePDF(ctx context.Context, data []byte) (*Document, error) {
	tmpDir, err := os.MkdirTemp(d.cfg.TempDir, "st-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			d.logger.Warn("document.tempdir.remove_failed", "path", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "statement.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	// pdftotext -bbox -enc UTF-8 [-l N] <in.pdf> -
	args := []string{"-bbox", "-enc", "UTF-8"}
	if d.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(d.cfg.MaxPages))
	}
	args = append(args, in, "-")
	start := time.Now()
	out, errb, err := d.runner.Run(ctx, d.cfg.Pdftotext, args...)
	if err != nil {
		d.logger.Error("document.pdftotext.failed",
			"pdf_bytes", len(data),
			"max_pages", d.cfg.MaxPages,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", string(errb),
		)
		return nil, fmt.Errorf("%w: pdftotext: %v: %s", ErrUndecodable, err, strings.TrimSpace(string(errb)))
	}
	pages, err := parseBBox(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	words := 0
	for _, p := range pages {
		words += len(p.Words)
	}
	d.logger.Debug("document.pdftotext.ok",
		"pdf_bytes", len(data),
		"bbox_bytes", len(out),
		"pages", len(pages),
		"words", words,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Document{Pages: pages, Method: "pdf-bbox"}, nil
}

type bboxWord struct {
	XMin float64 `xml:"xMin,attr"`
	YMin float64 `xml:"yMin,attr"`
	XMax float64 `xml:"xMax,attr"`
	YMax float64 `xml:"yMax,attr"`
	Text string  `xml:",chardata"`
}

// parseBBox reads the XHTML emitted by pdftotext -bbox.
func parseBBox(r io.Reader) ([]Page, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var pages []Page
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse bbox: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "page":
			p := Page{Index: len(pages)}
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "width":
					p.Width, _ = strconv.ParseFloat(a.Value, 64)
				case "height":
					p.Height, _ = strconv.ParseFloat(a.Value, 64)
				}
			}
			pages = append(pages, p)
		case "word":
			if len(pages) == 0 {
				continue
			}
			var w bboxWord
			if err := dec.DecodeElement(&w, &se); err != nil {
				return nil, fmt.Errorf("parse bbox word: %w", err)
			}
			text := strings.TrimSpace(w.Text)
			if text == "" {
				continue
			}
			p := &pages[len(pages)-1]
			p.Words = append(p.Words, Word{Text: text, X0: w.XMin, X1: w.XMax, Y: w.YMin})
		}
	}
	return pages, nil
}

// decodeLayoutText positions words by character column so that pdftotext -layout
// output keeps its column structure.
func decodeLayoutText(data []byte, maxPages int) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not a PDF and not UTF-8 text", ErrUndecodable)
	}
	if looksBinary(data) {
		return nil, fmt.Errorf("%w: binary content", ErrUndecodable)
	}

	rawPages := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\f")
	doc := &Document{Method: "layout-text"}
	for _, raw := range rawPages {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if maxPages > 0 && len(doc.Pages) >= maxPages {
			break
		}
		p := Page{Index: len(doc.Pages)}
		maxCols := 0
		for lineNo, line := range strings.Split(raw, "\n") {
			y := float64(lineNo+1) * lineHeight
			col, startCol := 0, -1
			var cur []rune
			flush := func() {
				if startCol >= 0 {
					p.Words = append(p.Words, Word{
						Text: string(cur),
						X0:   float64(startCol) * charWidth,
						X1:   float64(startCol+len(cur)) * charWidth,
						Y:    y,
					})
				}
				startCol, cur = -1, cur[:0]
			}
			for _, r := range line {
				if r == '\t' {
					flush()
					col = (col/8 + 1) * 8
					continue
				}
				if unicode.IsSpace(r) {
					flush()
				} else {
					if startCol < 0 {
						startCol = col
					}
					cur = append(cur, r)
				}
				col++
			}
			flush()
			if col > maxCols {
				maxCols = col
			}
			p.Height = y
		}
		p.Width = float64(maxCols) * charWidth
		doc.Pages = append(doc.Pages, p)
	}
	return doc, nil
}

func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	ctrl := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' {
			ctrl++
		}
	}
	return ctrl*10 > len(sample)
}
