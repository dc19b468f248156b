package rule

import "strconv"

// DefaultTable is the table (or key prefix) rules are stored under.
const DefaultTable = "casbin_rule"

// ColumnType is the logical type of a stored column.
type ColumnType string

const (
	TypeKey    ColumnType = "key"
	TypeString ColumnType = "string"
)

// Column describes one persisted column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is the hand-written description of the rule table. Stores take
// their table and column names from it instead of inspecting Go types.
type Schema struct {
	Table  string
	ID     Column
	Ptype  Column
	Fields [MaxFields]Column
}

// NewSchema returns the schema for the given table name, falling back to
// DefaultTable when table is empty.
func NewSchema(table string) Schema {
	if table == "" {
		table = DefaultTable
	}
	s := Schema{
		Table: table,
		ID:    Column{Name: "id", Type: TypeKey},
		Ptype: Column{Name: "ptype", Type: TypeString},
	}
	for i := range s.Fields {
		s.Fields[i] = Column{Name: "v" + strconv.Itoa(i), Type: TypeString, Nullable: true}
	}
	return s
}

// Columns returns all columns in table order.
func (s Schema) Columns() []Column {
	cols := make([]Column, 0, MaxFields+2)
	cols = append(cols, s.ID, s.Ptype)
	return append(cols, s.Fields[:]...)
}

// FieldIndex returns the position of a vN column, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, c := range s.Fields {
		if c.Name == name {
			return i
		}
	}
	return -1
}
