package parser

import "testing"

func TestIsPDF(t *testing.T) {
	for name, want := range map[string]bool{
		"paper.pdf":       true,
		"PAPER.PDF":       true,
		"notes.txt":       false,
		"pdf":             false,
		"archive.pdf.zip": false,
	} {
		if got := IsPDF(name); got != want {
			t.Errorf("IsPDF(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExtractPagesRejectsGarbage(t *testing.T) {
	var ex PDFExtractor
	if _, _, err := ex.ExtractPages([]byte("definitely not a pdf")); err == nil {
		t.Fatal("expected error for non-pdf bytes")
	}
	if _, _, err := ex.ExtractPages(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := ex.PageCount([]byte("%PDF-1.4 truncated")); err == nil {
		t.Fatal("expected error for truncated pdf")
	}
}
