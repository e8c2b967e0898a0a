package schedule

import (
	"bytes"
	"fmt"
)

// PdfRenderer is the report-rendering collaborator. Layout and styling
// are out of scope for the core; production wires a real renderer.
type PdfRenderer interface {
	// Render produces the PDF bytes for the given day sheets.
	Render(sheets []DaySheet) ([]byte, error)
}

// PlainRenderer emits a minimal but valid PDF: one page per day listing
// the allocations as monospaced text. It keeps publish usable in
// environments without the full report stack.
type PlainRenderer struct{}

func NewPlainRenderer() *PlainRenderer { return &PlainRenderer{} }

func (r *PlainRenderer) Render(sheets []DaySheet) ([]byte, error) {
	w := newPdfWriter()

	pageIDs := make([]int, 0, len(sheets))
	fontID := w.addObject("<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>")

	if len(sheets) == 0 {
		sheets = []DaySheet{{DayNumber: 1}}
	}
	contentIDs := make([]int, 0, len(sheets))
	for _, sheet := range sheets {
		var text bytes.Buffer
		fmt.Fprintf(&text, "BT /F1 11 Tf 40 800 Td 14 TL (Dia %d) Tj T*", sheet.DayNumber)
		for _, row := range sheet.Rows {
			ped := ""
			if row.IsPediatric {
				ped = " PED"
			}
			fmt.Fprintf(&text, " (%s  %05.2f-%05.2f  %s%s) Tj T*",
				escapePdf(row.Member), row.Start, row.End, escapePdf(row.DemandToken), ped)
		}
		text.WriteString(" ET")
		stream := text.String()
		contentIDs = append(contentIDs, w.addObject(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)))
	}

	pagesID := w.reserveObject()
	for _, contentID := range contentIDs {
		pageIDs = append(pageIDs, w.addObject(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 595 842] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			pagesID, contentID, fontID)))
	}
	kids := ""
	for _, id := range pageIDs {
		kids += fmt.Sprintf("%d 0 R ", id)
	}
	w.fillObject(pagesID, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pageIDs)))
	catalogID := w.addObject(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesID))

	return w.finish(catalogID), nil
}

func escapePdf(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r < 128 {
				b.WriteRune(r)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}

// pdfWriter assembles numbered objects and the xref table.
type pdfWriter struct {
	objects []string
}

func newPdfWriter() *pdfWriter { return &pdfWriter{} }

func (w *pdfWriter) addObject(body string) int {
	w.objects = append(w.objects, body)
	return len(w.objects)
}

func (w *pdfWriter) reserveObject() int {
	w.objects = append(w.objects, "")
	return len(w.objects)
}

func (w *pdfWriter) fillObject(id int, body string) {
	w.objects[id-1] = body
}

func (w *pdfWriter) finish(catalogID int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(w.objects))
	for i, body := range w.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(w.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(w.objects)+1, catalogID, xrefStart)
	return buf.Bytes()
}
