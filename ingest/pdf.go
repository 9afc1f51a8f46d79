package ingest

import (
	"bytes"
	"fmt"
	"strings"

	apperrors "rag-server/errors"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText pulls plain text out of a PDF byte stream, page by page.
// Pages that fail to extract are skipped rather than failing the document.
func ExtractPDFText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.WrapErrorf(apperrors.ErrInvalidInput, "malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "open pdf: %v", err)
	}

	pages = reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", pages, fmt.Errorf("pdf contains no extractable text")
	}
	return out, pages, nil
}
