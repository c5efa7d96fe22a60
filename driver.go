package tsodbc

import (
	"context"
	"crypto/tls"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethanyzhang/tsodbc/appbuf"
)

func init() {
	sql.Register("tsodbc", &tsDriver{})
}

// --- Parameter Binding ---

// paramBuffer stores a driver argument in an application buffer of the
// matching C type, the way an ODBC application binds a parameter.
func paramBuffer(v driver.Value) (*appbuf.Buffer, appbuf.SQLType, error) {
	var (
		buf     *appbuf.Buffer
		sqlType appbuf.SQLType
		err     error
	)
	switch val := v.(type) {
	case nil:
		buf, sqlType = appbuf.New(appbuf.CChar, 1), appbuf.SQLUnknown
		err = buf.PutNull()
	case int64:
		buf, sqlType = appbuf.New(appbuf.CSBigInt, 0), appbuf.SQLBigInt
		_, err = buf.PutInt64(val)
	case float64:
		buf, sqlType = appbuf.New(appbuf.CDouble, 0), appbuf.SQLDouble
		_, err = buf.PutFloat64(val)
	case bool:
		buf, sqlType = appbuf.New(appbuf.CBit, 0), appbuf.SQLBit
		_, err = buf.PutBool(val)
	case string:
		buf, sqlType = appbuf.New(appbuf.CChar, len(val)+1), appbuf.SQLVarChar
		_, err = buf.PutString(val)
	case []byte:
		buf, sqlType = appbuf.New(appbuf.CBinary, len(val)), appbuf.SQLVarBinary
		_, err = buf.PutBinary(val)
	case time.Time:
		buf, sqlType = appbuf.New(appbuf.CTimestamp, 0), appbuf.SQLTimestamp
		_, err = buf.PutTimestamp(val)
	default:
		return nil, 0, fmt.Errorf("unsupported parameter type: %T", v)
	}
	return buf, sqlType, err
}

func bindArgs(st *Statement, args []driver.NamedValue) error {
	for i, arg := range args {
		if arg.Name != "" {
			return fmt.Errorf("tsodbc: named parameter %q is not supported", arg.Name)
		}
		buf, sqlType, err := paramBuffer(arg.Value)
		if err != nil {
			return err
		}
		if err := st.BindParameter(i+1, buf, sqlType); err != nil {
			return err
		}
	}
	return nil
}

// --- database/sql glue ---

type tsDriver struct{}

var (
	_ driver.Driver        = (*tsDriver)(nil)
	_ driver.DriverContext = (*tsDriver)(nil)
)

func (d *tsDriver) Open(dsn string) (driver.Conn, error) {
	c, err := NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

func (d *tsDriver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(dsn)
}

// ConnectorOption customizes NewConnector.
type ConnectorOption func(*connector)

// WithSessionSetup runs fn on the session of each new connection. Auth
// providers hook in here to attach credentials.
func WithSessionSetup(fn func(*Session)) ConnectorOption {
	return func(c *connector) { c.setup = fn }
}

// connector lazily builds one Client from the DSN and hands each
// connection its own Session.
type connector struct {
	cfg   *dsnConfig
	setup func(*Session)

	init   sync.Once
	client *Client
	err    error
}

var (
	_ driver.Connector = (*connector)(nil)
	_ io.Closer        = (*connector)(nil)
)

// NewConnector parses dsn for use with sql.OpenDB or Connect.
func NewConnector(dsn string, opts ...ConnectorOption) (driver.Connector, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := &connector{cfg: cfg}
	for _, apply := range opts {
		apply(c)
	}
	return c, nil
}

func (c *connector) dial() (*Client, error) {
	c.init.Do(func() {
		var tlsCfg *tls.Config
		if tlsCfg, c.err = c.cfg.tlsConfig(); c.err != nil {
			return
		}
		if c.client, c.err = NewClient(c.cfg.serverURL()); c.err != nil {
			return
		}
		c.client.RateLimit(c.cfg.rateLimit, 1)
		if tlsCfg != nil {
			c.client.TLSConfig(tlsCfg)
		}
	})
	return c.client, c.err
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}

	cfg := c.cfg
	s := client.NewSession()
	switch {
	case cfg.user != "" && cfg.password != "":
		s.UserPassword(cfg.user, cfg.password)
	case cfg.user != "":
		s.User(cfg.user)
	}
	if cfg.database != "" {
		s.Database(cfg.database)
	}
	if cfg.clientInfo != "" {
		s.ClientInfo(cfg.clientInfo)
	}
	if len(cfg.clientTags) > 0 {
		s.ClientTags(cfg.clientTags...)
	}
	if cfg.maxRows > 0 {
		s.MaxRows(cfg.maxRows)
	}
	if c.setup != nil {
		c.setup(s)
	}
	return &conn{odbc: NewConnection(s)}, nil
}

// Connect opens a Connection from a connector returned by NewConnector,
// bypassing database/sql. Connections opened from one connector share its
// client until the connector is closed.
func Connect(ctx context.Context, c driver.Connector) (*Connection, error) {
	dc, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	cn, ok := dc.(*conn)
	if !ok {
		_ = dc.Close()
		return nil, fmt.Errorf("tsodbc: connector %T does not produce tsodbc connections", c)
	}
	return cn.odbc, nil
}

func (c *connector) Driver() driver.Driver { return &tsDriver{} }

// Close releases the shared client. sql.DB calls it on Close.
func (c *connector) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// conn adapts a Connection to database/sql.
type conn struct {
	odbc *Connection
}

var (
	_ driver.Conn           = (*conn)(nil)
	_ driver.QueryerContext = (*conn)(nil)
	_ driver.ExecerContext  = (*conn)(nil)
	_ driver.ConnBeginTx    = (*conn)(nil)
)

// ErrTransactionsUnsupported is returned by Begin; the service is read-only.
var ErrTransactionsUnsupported = errors.New("tsodbc: transactions are not supported")

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// Close flushes queued streaming statements.
func (c *conn) Close() error { return c.odbc.Close() }

func (c *conn) Begin() (driver.Tx, error) { return nil, ErrTransactionsUnsupported }

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return nil, ErrTransactionsUnsupported
}

// start executes query on a fresh statement. Cancelling ctx cancels the
// statement until the returned stop function is called.
func (c *conn) start(ctx context.Context, query string, args []driver.NamedValue) (*Statement, func() bool, error) {
	st := c.odbc.NewStatement()
	st.Prepare(query)
	if err := bindArgs(st, args); err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, st.Cancel)
	if _, err := st.Execute(ctx); err != nil {
		stop()
		st.Close()
		return nil, nil, err
	}
	return st, stop, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	st, stop, err := c.start(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return newRows(st, stop)
}

// ExecContext drains any result set and reports the affected row count.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	st, stop, err := c.start(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	defer stop()

	for {
		status, err := st.FetchNextRow()
		if err != nil {
			return nil, err
		}
		if status == StatusNoData {
			break
		}
	}
	affected, err := st.AffectedRows()
	if err != nil {
		return nil, err
	}
	return result{affected: affected}, nil
}

type result struct {
	affected int64
}

// LastInsertId always fails: the service has no generated keys.
func (r result) LastInsertId() (int64, error) {
	return 0, errors.New("tsodbc: LastInsertId is not supported")
}

func (r result) RowsAffected() (int64, error) { return r.affected, nil }

// readChunk is the buffer size used to read variable-length columns.
const readChunk = 256

// rows implements driver.Rows over a Statement, reading every column
// with GetColumn into a buffer of the column's default C type.
type rows struct {
	st      *Statement
	stop    func() bool
	columns []ColumnMeta
	bufs    []*appbuf.Buffer
	closed  bool
}

var (
	_ driver.Rows                           = (*rows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*rows)(nil)
	_ driver.RowsNextResultSet              = (*rows)(nil)
)

func newRows(st *Statement, stop func() bool) (*rows, error) {
	r := &rows{st: st, stop: stop}
	if err := r.describe(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *rows) describe() error {
	n, err := r.st.NumResultCols()
	if err != nil {
		return err
	}
	r.columns = make([]ColumnMeta, n)
	r.bufs = make([]*appbuf.Buffer, n)
	for i := range r.columns {
		if r.columns[i], err = r.st.DescribeColumn(i + 1); err != nil {
			return err
		}
		r.bufs[i] = appbuf.New(scanCType(r.columns[i].SQLType), readChunk)
	}
	return nil
}

// scanCType picks the C type a column is read as.
func scanCType(t appbuf.SQLType) appbuf.CType {
	switch t {
	case appbuf.SQLBigInt, appbuf.SQLInteger, appbuf.SQLSmallInt, appbuf.SQLTinyInt:
		return appbuf.CSBigInt
	case appbuf.SQLReal, appbuf.SQLDouble:
		return appbuf.CDouble
	case appbuf.SQLBit:
		return appbuf.CBit
	case appbuf.SQLDate, appbuf.SQLTime, appbuf.SQLTimestamp:
		return appbuf.CTimestamp
	case appbuf.SQLVarBinary:
		return appbuf.CBinary
	default:
		// Decimals, GUIDs and rendered composites are returned as text.
		return appbuf.CChar
	}
}

func (r *rows) Columns() []string {
	out := make([]string, 0, len(r.columns))
	for _, m := range r.columns {
		out = append(out, m.Name)
	}
	return out
}

func (r *rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.stop()
	r.st.Close()
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	status, err := r.st.FetchNextRow()
	if err != nil {
		return err
	}
	if status == StatusNoData {
		return io.EOF
	}
	for i := range r.columns {
		if dest[i], err = r.read(i); err != nil {
			return fmt.Errorf("column %s: %w", r.columns[i].Name, err)
		}
	}
	return nil
}

// read fetches column i, in chunks for variable-length types.
func (r *rows) read(i int) (driver.Value, error) {
	buf := r.bufs[i]
	var (
		text strings.Builder
		data []byte
	)
	for {
		res, err := r.st.GetColumn(i+1, buf)
		if err != nil {
			return nil, err
		}
		if buf.IsNull() {
			return nil, nil
		}
		switch buf.CType() {
		case appbuf.CSBigInt:
			return buf.GetInt64()
		case appbuf.CDouble:
			return buf.GetFloat64()
		case appbuf.CBit:
			return buf.GetBool()
		case appbuf.CTimestamp:
			return buf.GetTime()
		case appbuf.CBinary:
			part, err := buf.GetBinary()
			if err != nil {
				return nil, err
			}
			data = append(data, part...)
		default:
			part, err := buf.GetString()
			if err != nil {
				return nil, err
			}
			text.WriteString(part)
		}
		if res != appbuf.ConvVarLenDataTruncated {
			break
		}
	}
	if buf.CType() == appbuf.CBinary {
		if data == nil {
			data = []byte{}
		}
		return data, nil
	}
	return text.String(), nil
}

// HasNextResultSet is true while a parameter array has sets left.
func (r *rows) HasNextResultSet() bool {
	return !r.closed && r.st.paramSetSize > 1
}

func (r *rows) NextResultSet() error {
	status, err := r.st.NextResultSet(context.Background())
	if err != nil {
		return err
	}
	if status == StatusNoData {
		return io.EOF
	}
	return r.describe()
}

func (r *rows) column(i int) (ColumnMeta, bool) {
	if i < 0 || i >= len(r.columns) {
		return ColumnMeta{}, false
	}
	return r.columns[i], true
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	m, _ := r.column(index)
	return m.TypeName
}

// scanTypes is the Go type produced by each C type read; anything else
// scans as a string.
var scanTypes = map[appbuf.CType]reflect.Type{
	appbuf.CSBigInt:   reflect.TypeFor[int64](),
	appbuf.CDouble:    reflect.TypeFor[float64](),
	appbuf.CBit:       reflect.TypeFor[bool](),
	appbuf.CTimestamp: reflect.TypeFor[time.Time](),
	appbuf.CBinary:    reflect.TypeFor[[]byte](),
}

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	if m, ok := r.column(index); ok {
		if t, ok := scanTypes[scanCType(m.SQLType)]; ok {
			return t
		}
	}
	return reflect.TypeFor[string]()
}

// ColumnTypeNullable reports ok=false for an out-of-range index.
func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	m, ok := r.column(index)
	return ok && m.Nullable == appbuf.Nullable, ok
}

// stmt defers all work to its conn; preparation is client side.
type stmt struct {
	conn  *conn
	query string
}

var (
	_ driver.Stmt             = (*stmt)(nil)
	_ driver.StmtQueryContext = (*stmt)(nil)
	_ driver.StmtExecContext  = (*stmt)(nil)
)

func (s *stmt) Close() error { return nil }

func (s *stmt) NumInput() int { return countPlaceholders(s.query) }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), toNamed(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), toNamed(args))
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func toNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, 0, len(args))
	for i, v := range args {
		out = append(out, driver.NamedValue{Ordinal: i + 1, Value: v})
	}
	return out
}
