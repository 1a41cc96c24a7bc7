package ocr

import (
	"strconv"
	"strings"
)

// tesseract TSV columns:
// level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvCols     = 12
	tsvWordRow  = "5" // level 5 rows carry words
	tsvColLevel = 0
	tsvColBlock = 2
	tsvColPar   = 3
	tsvColLine  = 4
	tsvColConf  = 10
	tsvColText  = 11
)

type lineKey struct {
	block, par, line int
}

// parseTSV folds word rows into line fragments, preserving tesseract's
// top-to-bottom, left-to-right emission order. Words with conf -1 are
// structural rows and are skipped.
func parseTSV(out string) []Fragment {
	var (
		frags   []Fragment
		cur     lineKey
		started bool
		words   []string
		sum     float64
		n       int
	)

	flush := func() {
		if len(words) == 0 {
			return
		}
		conf := 0.0
		if n > 0 {
			conf = sum / float64(n) / 100.0
		}
		frags = append(frags, Fragment{
			Line:       len(frags) + 1,
			Text:       strings.Join(words, " "),
			Confidence: conf,
		})
		words, sum, n = nil, 0, 0
	}

	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || len(ln) == 0 { // skip header
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < tsvCols {
			continue
		}
		if cols[tsvColLevel] != tsvWordRow {
			continue
		}
		word := strings.TrimSpace(cols[tsvColText])
		if word == "" {
			continue
		}
		confStr := cols[tsvColConf]
		if confStr == "" || confStr == "-1" {
			continue
		}

		block, _ := strconv.Atoi(cols[tsvColBlock])
		par, _ := strconv.Atoi(cols[tsvColPar])
		line, _ := strconv.Atoi(cols[tsvColLine])
		key := lineKey{block: block, par: par, line: line}
		if started && key != cur {
			flush()
		}
		cur, started = key, true

		words = append(words, word)
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	flush()
	return frags
}
