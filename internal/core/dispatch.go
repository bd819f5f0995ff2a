package core

// Operation is the action selected for one data row.
type Operation int

const (
	OpSkip Operation = iota
	OpCreateVariant
	OpCreateProduct
	OpUpdateProducts
	OpUpdateVariants
)

func (o Operation) String() string {
	switch o {
	case OpCreateVariant:
		return "create_variant"
	case OpCreateProduct:
		return "create_product"
	case OpUpdateProducts:
		return "update_products"
	case OpUpdateVariants:
		return "update_variants"
	default:
		return "skip"
	}
}

// BuildAttributes collects the recognized, non-empty cells of row within the
// mapping's column bounds. Cell text is kept exactly as read; only a cell
// with no text at all is empty.
func BuildAttributes(row []string, m ColumnMapping) Attributes {
	attrs := make(Attributes)
	for i := m.First; i < m.End && i < len(row); i++ {
		name := m.Name(i)
		if name == "" {
			continue
		}
		if row[i] == "" {
			continue
		}
		attrs[name] = row[i]
	}
	return attrs
}

// KeyCell returns the text of column 0 of row.
func KeyCell(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// Classify picks the operation for a row. The first matching rule wins:
//
//	search key "id", empty key cell, product_id present -> create variant
//	search key "id", empty key cell                     -> create product
//	search key is a product attribute                   -> update products
//	search key is a variant attribute                   -> update variants
//	otherwise                                           -> skip
func Classify(searchKey, keyCell string, attrs Attributes, product, variant AttributeSet) Operation {
	if searchKey == AttrID && keyCell == "" {
		if _, ok := attrs[AttrProductID]; ok {
			return OpCreateVariant
		}
		return OpCreateProduct
	}

	switch {
	case searchKey == "":
		return OpSkip
	case product.Has(searchKey):
		return OpUpdateProducts
	case variant.Has(searchKey):
		return OpUpdateVariants
	default:
		return OpSkip
	}
}
