package tsodbc

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/utils"
)

var (
	ErrNotPrepared     = errors.New("tsodbc: statement not prepared")
	ErrNotExecuted     = errors.New("tsodbc: statement not executed")
	ErrCursorExhausted = errors.New("tsodbc: no current row")
	ErrCancelled       = errors.New("tsodbc: query cancelled")
	ErrColumnIndex     = errors.New("tsodbc: column index out of range")
)

// State is the lifecycle position of a Statement.
type State int

const (
	StateUnprepared State = iota
	StatePrepared
	StateExecuted
	StateFetching
)

var stateNames = utils.NewBiMap(map[State]string{
	StateUnprepared: "UNPREPARED",
	StatePrepared:   "PREPARED",
	StateExecuted:   "EXECUTED",
	StateFetching:   "FETCHING",
})

func (s State) String() string {
	if name, ok := stateNames.Lookup(s); ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// Status is the ODBC return code of a statement operation.
type Status int

const (
	StatusSuccess Status = iota
	StatusSuccessWithInfo
	StatusNoData
	StatusError
)

var statusNames = utils.NewBiMap(map[Status]string{
	StatusSuccess:         "SUCCESS",
	StatusSuccessWithInfo: "SUCCESS_WITH_INFO",
	StatusNoData:          "NO_DATA",
	StatusError:           "ERROR",
})

func (s Status) String() string {
	if name, ok := statusNames.Lookup(s); ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// RowStatus is the per-row outcome of a bulk Fetch.
type RowStatus int

const (
	RowSuccess RowStatus = iota
	RowSuccessWithInfo
	RowNoRow
	RowError
)

type paramBinding struct {
	buf     *appbuf.Buffer
	sqlType appbuf.SQLType
}

// Statement executes queries on a Connection and fetches their rows into
// bound application buffers. Columns and parameters are numbered from 1.
//
// A Statement is used from one goroutine; only Cancel may be called
// concurrently.
type Statement struct {
	conn  *Connection
	state State
	text  string

	// qmu guards q against Cancel.
	qmu sync.Mutex
	q   query

	columns      map[int]*appbuf.Buffer
	params       map[int]paramBinding
	paramSetSize int

	rowArraySize  int
	rowBindOffset int
	rowStatuses   []RowStatus
	rowsFetched   int

	diagnostics []error
}

func newStatement(c *Connection) *Statement {
	return &Statement{
		conn:         c,
		columns:      make(map[int]*appbuf.Buffer),
		params:       make(map[int]paramBinding),
		paramSetSize: 1,
		rowArraySize: 1,
	}
}

func (s *Statement) State() State { return s.state }

// --- Preparation & Execution ---

// Prepare stores text for execution. Preparing again discards the current
// result set.
func (s *Statement) Prepare(text string) {
	s.closeQuery()
	s.text = text
	s.state = StatePrepared
}

// Execute runs the prepared text. Bound parameters replace the ? markers;
// with a parameter set size above one, each set produces its own result set.
// Executing again closes the previous result set first.
func (s *Statement) Execute(ctx context.Context) (Status, error) {
	if s.state == StateUnprepared {
		return StatusError, ErrNotPrepared
	}
	s.closeQuery()
	s.state = StatePrepared

	q, err := s.newQuery()
	if err != nil {
		return StatusError, err
	}
	return s.run(ctx, q)
}

// ExecDirect prepares and executes text in one step.
func (s *Statement) ExecDirect(ctx context.Context, text string) (Status, error) {
	s.Prepare(text)
	return s.Execute(ctx)
}

// newQuery selects the variant for the prepared text.
func (s *Statement) newQuery() (query, error) {
	if cmd, ok, err := parseInternalCommand(s.text); ok {
		if err != nil {
			return nil, err
		}
		return &internalQuery{conn: s.conn, cmd: cmd}, nil
	}

	texts, err := s.boundTexts()
	if err != nil {
		return nil, err
	}
	switch {
	case s.conn.isStreaming():
		return &streamingQuery{conn: s.conn, texts: texts}, nil
	case len(texts) > 1:
		return newBatchQuery(s.conn.session, texts), nil
	default:
		return newDataQuery(s.conn.session, texts[0]), nil
	}
}

// boundTexts renders the prepared text once per parameter set.
func (s *Statement) boundTexts() ([]string, error) {
	n := s.NumParams()
	if n == 0 {
		return []string{s.text}, nil
	}

	texts := make([]string, s.paramSetSize)
	literals := make([]string, n)
	for set := range texts {
		for i := 1; i <= n; i++ {
			p, ok := s.params[i]
			if !ok {
				return nil, fmt.Errorf("parameter %d is not bound", i)
			}
			p.buf.SetElementOffset(set)
			v, err := p.buf.GetValue()
			if err != nil {
				return nil, fmt.Errorf("parameter %d of set %d: %w", i, set+1, err)
			}
			if literals[i-1], err = literalAs(v, p.sqlType); err != nil {
				return nil, fmt.Errorf("parameter %d of set %d: %w", i, set+1, err)
			}
		}
		text, err := interpolateParams(s.text, literals)
		if err != nil {
			return nil, err
		}
		texts[set] = text
	}
	for _, p := range s.params {
		p.buf.SetElementOffset(0)
	}
	return texts, nil
}

func (s *Statement) run(ctx context.Context, q query) (Status, error) {
	s.setQuery(q)
	s.diagnostics = nil
	s.rowsFetched = 0
	if err := q.execute(ctx); err != nil {
		s.closeQuery()
		return StatusError, err
	}
	s.state = StateExecuted
	return s.infoStatus(StatusSuccess), nil
}

func (s *Statement) infoStatus(st Status) Status {
	if st == StatusSuccess && len(s.query().warnings()) > 0 {
		return StatusSuccessWithInfo
	}
	return st
}

func (s *Statement) query() query {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.q
}

func (s *Statement) setQuery(q query) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	s.q = q
}

func (s *Statement) closeQuery() {
	s.qmu.Lock()
	q := s.q
	s.q = nil
	s.qmu.Unlock()
	if q != nil {
		q.close()
	}
}

// executed returns the active query or the sequence error explaining why
// there is none.
func (s *Statement) executed() (query, error) {
	switch s.state {
	case StateUnprepared:
		return nil, ErrNotPrepared
	case StatePrepared:
		return nil, ErrNotExecuted
	}
	return s.query(), nil
}

// --- Parameters ---

// NumParams returns the number of ? markers in the prepared text.
func (s *Statement) NumParams() int {
	return countPlaceholders(s.text)
}

// BindParameter binds buf as the value of parameter idx. sqlType is the
// declared type of the parameter; appbuf.SQLUnknown sends the value as the
// literal of its own kind. A nil buf unbinds the parameter.
func (s *Statement) BindParameter(idx int, buf *appbuf.Buffer, sqlType appbuf.SQLType) error {
	if idx < 1 {
		return fmt.Errorf("%w: parameter %d", ErrColumnIndex, idx)
	}
	if buf == nil {
		delete(s.params, idx)
		return nil
	}
	s.params[idx] = paramBinding{buf: buf, sqlType: sqlType}
	return nil
}

func (s *Statement) ResetParameters() {
	clear(s.params)
}

// SetParamSetSize sets how many parameter sets the bound buffers hold.
func (s *Statement) SetParamSetSize(n int) {
	s.paramSetSize = max(n, 1)
}

// --- Result description ---

func (s *Statement) NumResultCols() (int, error) {
	q, err := s.executed()
	if err != nil {
		return 0, err
	}
	return len(q.columns()), nil
}

func (s *Statement) DescribeColumn(idx int) (ColumnMeta, error) {
	q, err := s.executed()
	if err != nil {
		return ColumnMeta{}, err
	}
	cols := q.columns()
	if idx < 1 || idx > len(cols) {
		return ColumnMeta{}, fmt.Errorf("%w: %d of %d", ErrColumnIndex, idx, len(cols))
	}
	return cols[idx-1], nil
}

func (s *Statement) AffectedRows() (int64, error) {
	q, err := s.executed()
	if err != nil {
		return 0, err
	}
	return q.affectedRows(), nil
}

// Warnings returns the service warnings collected for the current result.
func (s *Statement) Warnings() []Warning {
	if q := s.query(); q != nil {
		return q.warnings()
	}
	return nil
}

// Diagnostics returns the row errors recorded by the last Fetch.
func (s *Statement) Diagnostics() []error { return s.diagnostics }

// --- Column binding ---

// BindColumn binds buf to column idx for FetchNextRow and Fetch. A nil buf
// unbinds the column.
func (s *Statement) BindColumn(idx int, buf *appbuf.Buffer) error {
	if idx < 1 {
		return fmt.Errorf("%w: %d", ErrColumnIndex, idx)
	}
	if buf == nil {
		delete(s.columns, idx)
		return nil
	}
	s.columns[idx] = buf
	return nil
}

func (s *Statement) UnbindColumns() {
	clear(s.columns)
}

// SetRowArraySize sets the number of rows Fetch returns per call.
func (s *Statement) SetRowArraySize(n int) {
	s.rowArraySize = max(n, 1)
}

// SetRowBindOffset shifts every bound buffer by n bytes during Fetch.
func (s *Statement) SetRowBindOffset(n int) {
	s.rowBindOffset = n
}

func (s *Statement) RowStatuses() []RowStatus { return s.rowStatuses }

// RowsFetched is the number of rows the last Fetch delivered.
func (s *Statement) RowsFetched() int { return s.rowsFetched }

// --- Fetching ---

// FetchNextRow advances to the next row and copies every bound column into
// element 0 of its buffer, shifted by the row bind offset. The first call
// after Execute positions on the first row.
func (s *Statement) FetchNextRow() (Status, error) {
	q, ok, err := s.advance()
	if err != nil || !ok {
		return rowStatus(ok, err), err
	}
	return s.readBound(q, 0)
}

// advance moves the result to its next row. Errors here are fatal to the
// result; conversion errors from readBound only affect the current row.
func (s *Statement) advance() (query, bool, error) {
	q, err := s.executed()
	if err != nil {
		return nil, false, err
	}
	s.state = StateFetching
	ok, err := q.next()
	return q, ok, err
}

func rowStatus(ok bool, err error) Status {
	if err != nil {
		return StatusError
	}
	if !ok {
		return StatusNoData
	}
	return StatusSuccess
}

// readBound converts the current row into element elem of each bound buffer.
func (s *Statement) readBound(q query, elem int) (Status, error) {
	status := StatusSuccess
	meta := q.columns()
	for _, idx := range slices.Sorted(maps.Keys(s.columns)) {
		buf := s.columns[idx]
		if idx > len(meta) {
			return StatusError, fmt.Errorf("%w: bound column %d of %d", ErrColumnIndex, idx, len(meta))
		}
		buf.SetByteOffset(s.rowBindOffset)
		buf.SetElementOffset(elem)
		resolveDefault(buf, meta[idx-1])
		res, err := q.row().ReadColumn(idx-1, buf)
		if err != nil {
			return StatusError, fmt.Errorf("column %d: %w", idx, err)
		}
		if res == appbuf.ConvVarLenDataTruncated {
			status = StatusSuccessWithInfo
		}
	}
	return status, nil
}

// Fetch fetches up to the row array size rows into the bound buffers, one
// element per row, and records each row's status. A row that fails to
// convert is marked RowError and the rowset continues with the next row; a
// failure to advance the result ends the rowset.
func (s *Statement) Fetch() (Status, error) {
	if _, err := s.executed(); err != nil {
		return StatusError, err
	}

	n := s.rowArraySize
	s.rowStatuses = make([]RowStatus, n)
	s.rowsFetched = 0
	s.diagnostics = nil
	defer func() {
		for _, buf := range s.columns {
			buf.SetElementOffset(0)
		}
	}()

	var firstErr error
	fail := func(i int, err error) {
		s.rowStatuses[i] = RowError
		s.diagnostics = append(s.diagnostics, fmt.Errorf("row %d: %w", i+1, err))
		if firstErr == nil {
			firstErr = err
		}
	}

	allSuccess := true
	i := 0
	for ; i < n; i++ {
		q, ok, err := s.advance()
		if err != nil {
			fail(i, err)
			allSuccess = false
			i++
			break
		}
		if !ok {
			break
		}
		st, err := s.readBound(q, i)
		switch {
		case err != nil:
			fail(i, err)
			allSuccess = false
		case st == StatusSuccessWithInfo:
			s.rowStatuses[i] = RowSuccessWithInfo
			s.rowsFetched++
			allSuccess = false
		default:
			s.rowStatuses[i] = RowSuccess
			s.rowsFetched++
		}
	}
	for ; i < n; i++ {
		s.rowStatuses[i] = RowNoRow
		allSuccess = false
	}

	switch {
	case s.rowsFetched == 0 && firstErr != nil:
		return StatusError, firstErr
	case s.rowsFetched == 0:
		return StatusNoData, nil
	case allSuccess:
		return StatusSuccess, nil
	default:
		return StatusSuccessWithInfo, nil
	}
}

// GetColumn reads column idx of the current row into buf. Repeated calls on
// the same column continue where the previous call stopped; once the value
// is fully delivered GetColumn reports appbuf.ConvNoData.
func (s *Statement) GetColumn(idx int, buf *appbuf.Buffer) (appbuf.ConversionResult, error) {
	q, err := s.executed()
	if err != nil {
		return appbuf.ConvNoData, err
	}
	meta := q.columns()
	if idx < 1 || idx > len(meta) {
		return appbuf.ConvNoData, fmt.Errorf("%w: %d of %d", ErrColumnIndex, idx, len(meta))
	}
	row := q.row()
	if row == nil {
		return appbuf.ConvNoData, ErrCursorExhausted
	}
	resolveDefault(buf, meta[idx-1])
	return row.ReadColumn(idx-1, buf)
}

// resolveDefault replaces SQL_C_DEFAULT with the C type matching the
// column's SQL type.
func resolveDefault(buf *appbuf.Buffer, m ColumnMeta) {
	if buf.CType() == appbuf.CDefault {
		buf.SetCType(m.SQLType.DefaultCType())
	}
}

// NextResultSet moves to the result of the next parameter set. It returns
// StatusNoData when there is none.
func (s *Statement) NextResultSet(ctx context.Context) (Status, error) {
	q, err := s.executed()
	if err != nil {
		return StatusError, err
	}
	ok, err := q.nextResultSet(ctx)
	if err != nil {
		return StatusError, err
	}
	if !ok {
		return StatusNoData, nil
	}
	s.state = StateExecuted
	return s.infoStatus(StatusSuccess), nil
}

// Cancel stops the running query. It is safe to call from another
// goroutine; a blocked fetch then fails with ErrCancelled.
func (s *Statement) Cancel() {
	if q := s.query(); q != nil {
		q.cancel()
	}
}

// Close releases the result set and returns the statement to Unprepared.
// Bindings are kept. Closing a closed statement is a no-op.
func (s *Statement) Close() {
	s.closeQuery()
	s.text = ""
	s.state = StateUnprepared
	s.rowStatuses = nil
	s.rowsFetched = 0
}

// --- Catalog functions ---

// Tables lists tables matching the search patterns. Databases are reported
// as schemas. schema "%" with empty catalog and table lists the databases,
// and types "%" with the rest empty lists the table types.
func (s *Statement) Tables(ctx context.Context, catalog, schema, table, types string) (Status, error) {
	return s.runCatalog(ctx, tablesQuery(s.conn.session, catalog, schema, table, types))
}

// Columns lists the columns of the tables matching the search patterns.
func (s *Statement) Columns(ctx context.Context, schema, table, column string) (Status, error) {
	return s.runCatalog(ctx, columnsQuery(s.conn.session, schema, table, column))
}

func (s *Statement) PrimaryKeys(ctx context.Context) (Status, error) {
	return s.runCatalog(ctx, primaryKeysQuery())
}

func (s *Statement) ForeignKeys(ctx context.Context) (Status, error) {
	return s.runCatalog(ctx, foreignKeysQuery())
}

// TypeInfo describes the supported data types; AllTypes lists all of them.
func (s *Statement) TypeInfo(ctx context.Context, dataType appbuf.SQLType) (Status, error) {
	return s.runCatalog(ctx, typeInfoQuery(dataType))
}

func (s *Statement) SpecialColumns(ctx context.Context) (Status, error) {
	return s.runCatalog(ctx, specialColumnsQuery())
}

func (s *Statement) runCatalog(ctx context.Context, q *metaQuery) (Status, error) {
	s.closeQuery()
	s.state = StatePrepared
	return s.run(ctx, q)
}
