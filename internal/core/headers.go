package core

// ColumnMapping is the per-column result of classifying a header row.
// Names[i] is the recognized attribute name of column i, or "" when the
// column is unrecognized or outside [First, End).
type ColumnMapping struct {
	Names []string
	First int
	End   int
}

// ClassifyHeaders maps each header cell in [first, end) to a recognized
// attribute name. A cell is recognized when it is a product attribute, a
// variant attribute or the TaxonsColumn marker, checked in that order.
// Header text must match a name exactly.
func ClassifyHeaders(header []string, first, end int, product, variant AttributeSet) ColumnMapping {
	if first < 0 {
		first = 0
	}
	if end < first {
		end = first
	}

	m := ColumnMapping{Names: make([]string, end), First: first, End: end}
	for i := first; i < end && i < len(header); i++ {
		m.Names[i] = recognize(header[i], product, variant)
	}
	return m
}

func recognize(cell string, product, variant AttributeSet) string {
	switch {
	case cell == "":
		return ""
	case product.Has(cell), variant.Has(cell), cell == TaxonsColumn:
		return cell
	default:
		return ""
	}
}

// Name returns the attribute name of column i, or "" when unrecognized.
func (m ColumnMapping) Name(i int) string {
	if i < 0 || i >= len(m.Names) {
		return ""
	}
	return m.Names[i]
}

// SearchKey returns the attribute governing dispatch: the header of column 0.
func (m ColumnMapping) SearchKey() string {
	return m.Name(0)
}

// Recognized returns the number of recognized columns.
func (m ColumnMapping) Recognized() int {
	n := 0
	for _, name := range m.Names {
		if name != "" {
			n++
		}
	}
	return n
}
