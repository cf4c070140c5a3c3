package preflight

import "testing"

func TestCheckPDFRejectsNonPDF(t *testing.T) {
	if _, err := CheckPDF([]byte("plain text, definitely not a pdf")); err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
}

func TestCheckPDFRejectsEmptyInput(t *testing.T) {
	if _, err := CheckPDF(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
