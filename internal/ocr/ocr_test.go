package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
)

const sampleTSV = `level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text
1	1	0	0	0	0	0	0	1000	1400	-1
5	1	1	1	1	1	10	10	80	20	91	This
5	1	1	1	1	2	100	10	120	20	95	Agreement
5	1	1	1	2	1	10	40	60	20	80	between
5	1	1	1	2	2	80	40	90	20	70	parties
5	1	2	1	1	1	10	400	100	20	52	Signed
`

func TestParseTSVGroupsWordsIntoLines(t *testing.T) {
	frags := parseTSV(sampleTSV)
	if len(frags) != 3 {
		t.Fatalf("expected 3 line fragments, got %d: %+v", len(frags), frags)
	}

	if frags[0].Text != "This Agreement" {
		t.Errorf("line 1 text = %q", frags[0].Text)
	}
	if got, want := frags[0].Confidence, 0.93; !almostEqual(got, want) {
		t.Errorf("line 1 confidence = %.3f, want %.3f", got, want)
	}

	if frags[1].Text != "between parties" {
		t.Errorf("line 2 text = %q", frags[1].Text)
	}
	if got, want := frags[1].Confidence, 0.75; !almostEqual(got, want) {
		t.Errorf("line 2 confidence = %.3f, want %.3f", got, want)
	}

	// new block starts a new fragment even at line_num 1
	if frags[2].Text != "Signed" {
		t.Errorf("line 3 text = %q", frags[2].Text)
	}

	for i, f := range frags {
		if f.Line != i+1 {
			t.Errorf("fragment %d has line %d", i, f.Line)
		}
	}
}

func TestParseTSVEmptyOutput(t *testing.T) {
	if frags := parseTSV(""); len(frags) != 0 {
		t.Fatalf("expected no fragments, got %+v", frags)
	}
	header := "level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text\n"
	if frags := parseTSV(header); len(frags) != 0 {
		t.Fatalf("expected no fragments for header-only output, got %+v", frags)
	}
}

func TestMeanConfidence(t *testing.T) {
	frags := []Fragment{{Confidence: 0.2}, {Confidence: 0.6}}
	if got := MeanConfidence(frags); !almostEqual(got, 0.4) {
		t.Errorf("mean = %.3f, want 0.4", got)
	}
	if got := MeanConfidence(nil); got != 0 {
		t.Errorf("mean of none = %.3f, want 0", got)
	}
}

// fakeRunner serves canned tesseract/pdftoppm behavior.
type fakeRunner struct {
	tsv      string
	rendered []string
	fail     bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	if f.fail {
		return nil, []byte("boom"), fmt.Errorf("exit status 1")
	}
	if strings.Contains(name, "pdftoppm") {
		// last arg is the output prefix; emit one page image
		prefix := args[len(args)-1]
		path := prefix + "-1.png"
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return nil, nil, err
		}
		f.rendered = append(f.rendered, path)
		return nil, nil, nil
	}
	return []byte(f.tsv), nil, nil
}

func testAdapter(t *testing.T, r Runner) *Adapter {
	t.Helper()
	a := NewAdapter(Config{}, slog.Default())
	a.runner = r
	return a
}

func TestRecognizeReturnsFragments(t *testing.T) {
	a := testAdapter(t, &fakeRunner{tsv: sampleTSV})

	frags, err := a.Recognize(context.Background(), "scan.png")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
}

func TestRecognizeCommandFailure(t *testing.T) {
	a := testAdapter(t, &fakeRunner{fail: true})

	if _, err := a.Recognize(context.Background(), "scan.png"); err == nil {
		t.Fatal("expected error when tesseract fails")
	}
}

func TestRecognizePDFPage(t *testing.T) {
	r := &fakeRunner{tsv: sampleTSV}
	a := testAdapter(t, r)

	frags, err := a.RecognizePDFPage(context.Background(), "doc.pdf", 2)
	if err != nil {
		t.Fatalf("RecognizePDFPage: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	if len(r.rendered) != 1 {
		t.Fatalf("expected one rendered page, got %d", len(r.rendered))
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 0.001 && d > -0.001
}
