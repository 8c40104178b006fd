package messagegorm

import (
	"context"
	"fmt"
	"strings"

	"github.com/oggyb/courier/internal/domain/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// searchConfig is the postgres text search configuration used for both
// indexing and querying.
const searchConfig = "english"

// SearchVector is the weighted tsvector column of a message. On write it is
// rendered as a SQL expression so the vector is computed inside the INSERT
// itself; on read it holds the raw tsvector text.
type SearchVector struct {
	Parts []message.SearchPart
	Raw   string
}

// GormDataType implements schema.GormDataTypeInterface.
func (SearchVector) GormDataType() string { return "tsvector" }

// GormValue implements gorm.Valuer.
func (v SearchVector) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if len(v.Parts) == 0 {
		return clause.Expr{SQL: "''::tsvector"}
	}

	sqls := make([]string, 0, len(v.Parts))
	vars := make([]any, 0, len(v.Parts))
	for _, p := range v.Parts {
		sqls = append(sqls, fmt.Sprintf("setweight(to_tsvector('%s', ?), '%s')", searchConfig, p.Weight))
		vars = append(vars, p.Text)
	}

	return clause.Expr{SQL: strings.Join(sqls, " || "), Vars: vars}
}

// Scan implements sql.Scanner.
func (v *SearchVector) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		v.Raw = ""
	case string:
		v.Raw = s
	case []byte:
		v.Raw = string(s)
	default:
		return fmt.Errorf("search vector: unsupported scan type %T", src)
	}
	return nil
}
