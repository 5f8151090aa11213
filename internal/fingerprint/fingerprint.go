// Package fingerprint reduces SQL statements to canonical fingerprints so
// queries that differ only in literal values share one aggregation key.
package fingerprint

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/pkg/errors"
)

// Normalizer rewrites literals inside parsed statements and renders the
// result back to SQL. The underlying parser keeps internal state, so a
// Normalizer must not be shared between goroutines.
type Normalizer struct {
	parser *parser.Parser
}

// New returns a ready Normalizer.
func New() *Normalizer {
	return &Normalizer{parser: parser.New()}
}

// Normalize parses sql, erases literal values, collapses IN lists and
// renders each statement back to text. Statements the parser rejects, and
// statements that fail to render, degrade to a sentinel fingerprint that
// keeps the original text together with the error.
func (n *Normalizer) Normalize(sql string) string {
	stmts, _, err := n.parser.Parse(sql, "", "")
	if err != nil {
		return unparseable(sql, err)
	}
	parts := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		normalizeStmt(stmt)
		text, err := restore(stmt)
		if err != nil {
			return unparseable(sql, err)
		}
		parts = append(parts, text+";")
	}
	return strings.Join(parts, " ")
}

func unparseable(sql string, err error) string {
	return fmt.Sprintf("Unparseable statement: %s (%s)", sql, err)
}

func restore(node ast.Node) (string, error) {
	buf := new(bytes.Buffer)
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags|format.RestoreStringWithoutCharset, buf)
	if err := node.Restore(ctx); err != nil {
		return "", errors.Wrap(err, "restore error")
	}
	return buf.String(), nil
}

func normalizeStmt(in ast.StmtNode) {
	switch in := in.(type) {
	case *ast.SelectStmt:
		normalizeSelect(in)
	case *ast.SetOprStmt:
		normalizeSetOpr(in)
	case *ast.InsertStmt:
		normalizeInsert(in)
	case *ast.UpdateStmt:
		normalizeUpdate(in)
	case *ast.DeleteStmt:
		normalizeDelete(in)
	default:
		// other statement kinds keep their original text
	}
}

func normalizeSelect(in *ast.SelectStmt) {
	if in == nil {
		return
	}
	normalizeWith(in.With)
	if in.Fields != nil {
		for _, field := range in.Fields.Fields {
			normalizeExpr(field.Expr)
		}
	}
	if in.From != nil {
		normalizeJoin(in.From.TableRefs)
	}
	normalizeExpr(in.Where)
	if in.GroupBy != nil {
		for _, item := range in.GroupBy.Items {
			normalizeExpr(item.Expr)
		}
	}
	if in.Having != nil {
		normalizeExpr(in.Having.Expr)
	}
	normalizeOrderBy(in.OrderBy)
	normalizeLimit(in.Limit)
}

func normalizeInsert(in *ast.InsertStmt) {
	if in == nil {
		return
	}
	if in.Table != nil {
		normalizeJoin(in.Table.TableRefs)
	}
	// Lists carries both the VALUES rows and the INSERT ... SET values
	// (Setlist is only a syntax flag).
	for _, row := range in.Lists {
		for _, val := range row {
			normalizeExpr(val)
		}
	}
	for _, assign := range in.OnDuplicate {
		normalizeExpr(assign.Expr)
	}
	if in.Select != nil {
		normalizeResultSet(in.Select)
	}
}

func normalizeUpdate(in *ast.UpdateStmt) {
	if in == nil {
		return
	}
	normalizeWith(in.With)
	if in.TableRefs != nil {
		normalizeJoin(in.TableRefs.TableRefs)
	}
	for _, assign := range in.List {
		normalizeExpr(assign.Expr)
	}
	normalizeExpr(in.Where)
	normalizeOrderBy(in.Order)
	normalizeLimit(in.Limit)
}

func normalizeDelete(in *ast.DeleteStmt) {
	if in == nil {
		return
	}
	normalizeWith(in.With)
	if in.TableRefs != nil {
		normalizeJoin(in.TableRefs.TableRefs)
	}
	normalizeExpr(in.Where)
	normalizeOrderBy(in.Order)
	normalizeLimit(in.Limit)
}

// normalizeResultSet: bridge over SelectStmt, SetOprStmt, Join, TableSource,
// TableName and SubqueryExpr.
func normalizeResultSet(in ast.ResultSetNode) {
	if in == nil {
		return
	}
	switch in := in.(type) {
	case *ast.SelectStmt:
		normalizeSelect(in)
	case *ast.SetOprStmt:
		normalizeSetOpr(in)
	case *ast.Join:
		normalizeJoin(in)
	case *ast.TableSource:
		normalizeResultSet(in.Source)
	case *ast.TableName:
		// skip
	case *ast.SubqueryExpr:
		normalizeResultSet(in.Query)
	}
}

func normalizeJoin(in *ast.Join) {
	if in == nil {
		return
	}
	normalizeResultSet(in.Left)
	normalizeResultSet(in.Right)
	if in.On != nil {
		normalizeExpr(in.On.Expr)
	}
}

func normalizeSetOpr(in *ast.SetOprStmt) {
	if in == nil {
		return
	}
	normalizeWith(in.With)
	normalizeSetOprList(in.SelectList)
	normalizeOrderBy(in.OrderBy)
	normalizeLimit(in.Limit)
}

func normalizeSetOprList(in *ast.SetOprSelectList) {
	if in == nil {
		return
	}
	normalizeWith(in.With)
	for _, sel := range in.Selects {
		switch sel := sel.(type) {
		case *ast.SelectStmt:
			normalizeSelect(sel)
		case *ast.SetOprSelectList:
			normalizeSetOprList(sel)
		}
	}
}

func normalizeWith(in *ast.WithClause) {
	if in == nil {
		return
	}
	for _, cte := range in.CTEs {
		if cte.Query != nil {
			normalizeResultSet(cte.Query.Query)
		}
	}
}

func normalizeOrderBy(in *ast.OrderByClause) {
	if in == nil {
		return
	}
	for _, item := range in.Items {
		normalizeExpr(item.Expr)
	}
}

func normalizeLimit(in *ast.Limit) {
	if in == nil {
		return
	}
	normalizeExpr(in.Count)
	normalizeExpr(in.Offset)
}

func normalizeWindowSpec(in *ast.WindowSpec) {
	if in == nil {
		return
	}
	if in.PartitionBy != nil {
		for _, item := range in.PartitionBy.Items {
			normalizeExpr(item.Expr)
		}
	}
	normalizeOrderBy(in.OrderBy)
}

// normalizeExpr: bridge over expression kinds. The dispatch set is closed;
// kinds outside it keep their original text.
func normalizeExpr(in ast.ExprNode) {
	if in == nil {
		return
	}
	switch in := in.(type) {
	case *test_driver.ValueExpr:
		normalizeValue(in)
	case *ast.BetweenExpr:
		normalizeExpr(in.Expr)
		normalizeExpr(in.Left)
		normalizeExpr(in.Right)
	case *ast.BinaryOperationExpr:
		normalizeExpr(in.L)
		normalizeExpr(in.R)
	case *ast.CaseExpr:
		normalizeExpr(in.Value)
		for _, when := range in.WhenClauses {
			normalizeExpr(when.Expr)
			normalizeExpr(when.Result)
		}
		normalizeExpr(in.ElseClause)
	case *ast.SubqueryExpr:
		normalizeResultSet(in.Query)
	case *ast.CompareSubqueryExpr:
		normalizeExpr(in.L)
		normalizeExpr(in.R)
	case *ast.ExistsSubqueryExpr:
		normalizeExpr(in.Sel)
	case *ast.PatternInExpr:
		normalizeIn(in)
	case *ast.IsNullExpr:
		normalizeExpr(in.Expr)
	case *ast.IsTruthExpr:
		normalizeExpr(in.Expr)
	case *ast.PatternLikeOrIlikeExpr:
		normalizeExpr(in.Expr)
		normalizeExpr(in.Pattern)
	case *ast.ParenthesesExpr:
		normalizeExpr(in.Expr)
	case *ast.PatternRegexpExpr:
		normalizeExpr(in.Expr)
		normalizeExpr(in.Pattern)
	case *ast.RowExpr:
		for _, val := range in.Values {
			normalizeExpr(val)
		}
	case *ast.UnaryOperationExpr:
		normalizeExpr(in.V)
	case *ast.VariableExpr:
		normalizeExpr(in.Value)
	case *ast.SetCollationExpr:
		normalizeExpr(in.Expr)
	case *ast.FuncCallExpr:
		normalizeFuncCall(in)
	case *ast.FuncCastExpr:
		normalizeExpr(in.Expr)
	case *ast.AggregateFuncExpr:
		for _, arg := range in.Args {
			normalizeExpr(arg)
		}
		normalizeOrderBy(in.Order)
	case *ast.WindowFuncExpr:
		for _, arg := range in.Args {
			normalizeExpr(arg)
		}
		normalizeWindowSpec(&in.Spec)
	case *ast.TimeUnitExpr:
		// skip, EXTRACT and TIMESTAMPADD units are structure
	case *ast.GetFormatSelectorExpr:
		// skip
	case *ast.TrimDirectionExpr:
		// skip
	case *ast.ColumnNameExpr:
		// skip
	case *ast.TableNameExpr:
		// skip
	case *ast.DefaultExpr:
		// skip
	case *ast.PositionExpr:
		// skip
	case *ast.MaxValueExpr:
		// skip
	case *ast.MatchAgainst:
		// skip
	case *ast.ValuesExpr:
		// skip
	default:
		// unrecognized kinds keep their original text
	}
}

// normalizeIn collapses the IN list to its first element. List cardinality
// is not part of the fingerprint.
func normalizeIn(in *ast.PatternInExpr) {
	normalizeExpr(in.Expr)
	if len(in.List) > 1 {
		in.List = in.List[:1]
	}
	for _, item := range in.List {
		normalizeExpr(item)
	}
	normalizeExpr(in.Sel)
}

func normalizeFuncCall(in *ast.FuncCallExpr) {
	switch in.FnName.L {
	case ast.DateLiteral:
		setStringArg(in.Args, 0, "1970-01-01")
		return
	case ast.TimeLiteral:
		setStringArg(in.Args, 0, "00:00:00")
		return
	case ast.TimestampLiteral:
		setStringArg(in.Args, 0, "1970-01-01 00:00:00")
		return
	case ast.DateAdd, ast.DateSub, ast.AddDate, ast.SubDate:
		// INTERVAL amount and unit canonicalize to INTERVAL 1 SECOND.
		if len(in.Args) == 3 {
			if unit, ok := in.Args[2].(*ast.TimeUnitExpr); ok {
				normalizeExpr(in.Args[0])
				if val, ok := in.Args[1].(*test_driver.ValueExpr); ok {
					val.SetValue(int64(1))
				} else {
					normalizeExpr(in.Args[1])
				}
				unit.Unit = ast.TimeUnitSecond
				return
			}
		}
	}
	for _, arg := range in.Args {
		normalizeExpr(arg)
	}
}

func setStringArg(args []ast.ExprNode, i int, s string) {
	if i >= len(args) {
		return
	}
	if val, ok := args[i].(*test_driver.ValueExpr); ok {
		val.SetValue(s)
	}
}

// normalizeValue erases one literal in place. NULL stays NULL, booleans keep
// their type flag so they render as TRUE, numbers become 0 and string-like
// literals become the empty string.
func normalizeValue(in *test_driver.ValueExpr) {
	switch in.Kind() {
	case test_driver.KindNull:
		// keep
	case test_driver.KindInt64:
		if in.Type.GetFlag()&mysql.IsBooleanFlag != 0 {
			in.SetValue(true)
		} else {
			in.SetValue(int64(0))
		}
	case test_driver.KindUint64, test_driver.KindFloat32, test_driver.KindFloat64, test_driver.KindMysqlDecimal:
		in.SetValue(int64(0))
	case test_driver.KindString, test_driver.KindBytes, test_driver.KindBinaryLiteral:
		in.SetValue("")
	default:
		// keep
	}
}
