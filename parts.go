package ygggo_sql

// Part identifies one fragment kind of a SELECT statement. The set is closed:
// every builder and every dialect address fragments through these values.
type Part int

const (
	PartColumns Part = iota
	PartDistinct
	PartGroup
	PartJoin
	PartLimit
	PartOffset
	PartOrder
	PartTable
	PartTableAlias
	PartUnion
	PartWhere
	PartHaving

	partCount
)

var partNames = [...]string{
	PartColumns:    "columns",
	PartDistinct:   "distinct",
	PartGroup:      "group",
	PartJoin:       "join",
	PartLimit:      "limit",
	PartOffset:     "offset",
	PartOrder:      "order",
	PartTable:      "table",
	PartTableAlias: "table-alias",
	PartUnion:      "union",
	PartWhere:      "where",
	PartHaving:     "having",
}

func (p Part) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return partNames[p]
}

// Valid reports whether p belongs to the registry.
func (p Part) Valid() bool { return p >= 0 && p < partCount }

// Parts returns every registered part kind.
func Parts() []Part {
	out := make([]Part, 0, partCount)
	for p := Part(0); p < partCount; p++ {
		out = append(out, p)
	}
	return out
}

// renderSequence is the order in which parts are rendered and concatenated.
// It follows the textual order of the statement so that placeholders and
// the binding sink advance together.
var renderSequence = []Part{
	PartDistinct,
	PartColumns,
	PartTable,
	PartTableAlias,
	PartJoin,
	PartWhere,
	PartGroup,
	PartHaving,
	PartOrder,
	PartUnion,
	PartLimit,
	PartOffset,
}
