// Package document projects finalized sale records, contracts and invoices
// into fixed-section paginated documents.
//
// Layouts are declarative: a Document is an ordered list of Sections made of
// Blocks. Builders always emit every section of a document type, filling
// empty values with Placeholder, and renderers only paginate what they are
// given. Nothing in this package validates business data.
package document

import "time"

type Kind string

const (
	KindContract Kind = "Contract"
	KindInvoice  Kind = "Invoice"
	KindSale     Kind = "Sale"
)

type Document struct {
	Kind      Kind
	Title     string
	Reference string
	Date      time.Time
	Footer    string
	Sections  []Section
}

// Keys lists section keys in order.
func (d Document) Keys() []string {
	keys := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		keys[i] = s.Key
	}
	return keys
}

func (d Document) Section(key string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

type Section struct {
	Key     string
	Heading string
	Blocks  []Block
}

// Block is one of Paragraph, Fields, Table, Checklist or Signatures.
type Block interface {
	isBlock()
}

type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

type Paragraph struct {
	Text  string
	Bold  bool
	Large bool
	Align Align
}

type Field struct {
	Label string
	Value string
}

type Fields struct {
	Rows []Field
}

// Value returns the value of the first row labelled label.
func (f Fields) Value(label string) (string, bool) {
	for _, r := range f.Rows {
		if r.Label == label {
			return r.Value, true
		}
	}
	return "", false
}

type Column struct {
	Header string
	// Width is a fraction of the printable width.
	Width float64
	Align Align
}

type Table struct {
	Columns []Column
	Rows    [][]string
}

type CheckItem struct {
	Label   string
	Checked bool
}

type Checklist struct {
	Items []CheckItem
}

type Signatory struct {
	Role string
	Name string
}

type Signatures struct {
	Parties []Signatory
}

func (Paragraph) isBlock()  {}
func (Fields) isBlock()     {}
func (Table) isBlock()      {}
func (Checklist) isBlock()  {}
func (Signatures) isBlock() {}

// Texts flattens every printable string of s, in order. Tests and search use
// it to check content without a renderer.
func (s Section) Texts() []string {
	out := []string{s.Heading}
	for _, b := range s.Blocks {
		switch b := b.(type) {
		case Paragraph:
			out = append(out, b.Text)
		case Fields:
			for _, r := range b.Rows {
				out = append(out, r.Label, r.Value)
			}
		case Table:
			for _, c := range b.Columns {
				out = append(out, c.Header)
			}
			for _, row := range b.Rows {
				out = append(out, row...)
			}
		case Checklist:
			for _, it := range b.Items {
				out = append(out, it.Label)
			}
		case Signatures:
			for _, p := range b.Parties {
				out = append(out, p.Role, p.Name)
			}
		}
	}
	return out
}
