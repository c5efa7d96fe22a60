package tsodbc_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/odbctest"
	"github.com/ethanyzhang/tsodbc/value"
	"github.com/ethanyzhang/tsodbc/wire"
)

// exampleService starts a mock service holding a small cpu table.
func exampleService() *odbctest.MockServer {
	mock := odbctest.NewMockServer()
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL: "SELECT host, usage FROM cpu",
		Columns: []tsodbc.ColumnInfo{
			{Name: "host", Type: tsodbc.Type{ScalarType: tsodbc.ScalarVarchar}},
			{Name: "usage", Type: tsodbc.Type{ScalarType: tsodbc.ScalarInteger}},
		},
		Rows: [][]value.Value{
			{value.String("web-1"), value.Int32(35)},
			{value.String("web-2"), value.Int32(72)},
			{value.String("db-1"), value.Int32(18)},
		},
		Pages: 2,
	})
	return mock
}

func Example() {
	mock := exampleService()
	defer mock.Close()

	db, err := sql.Open("tsodbc", "tsodbc://"+strings.TrimPrefix(mock.URL(), "http://")+"/metrics")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(context.Background(), "SELECT host, usage FROM cpu")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var host string
		var usage int64
		if err := rows.Scan(&host, &usage); err != nil {
			log.Fatal(err)
		}
		fmt.Println(host, usage)
	}
	// Output:
	// web-1 35
	// web-2 72
	// db-1 18
}

func ExampleStatement_Fetch() {
	mock := exampleService()
	defer mock.Close()

	client, err := tsodbc.NewClient(mock.URL())
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	conn := tsodbc.NewConnection(client.NewSession().Database("metrics"))
	defer conn.Close()

	st := conn.NewStatement()
	defer st.Close()
	if _, err := st.ExecDirect(context.Background(), "SELECT host, usage FROM cpu"); err != nil {
		log.Fatal(err)
	}

	// Bind two-row arrays to both columns and fetch a rowset at a time.
	hosts := appbuf.NewArray(appbuf.CChar, 16, 2)
	usage := appbuf.NewArray(appbuf.CSLong, 0, 2)
	if err := st.BindColumn(1, hosts); err != nil {
		log.Fatal(err)
	}
	if err := st.BindColumn(2, usage); err != nil {
		log.Fatal(err)
	}
	st.SetRowArraySize(2)

	for {
		status, err := st.Fetch()
		if err != nil {
			log.Fatal(err)
		}
		if status == tsodbc.StatusNoData {
			break
		}
		for i := 0; i < st.RowsFetched(); i++ {
			hosts.SetElementOffset(i)
			usage.SetElementOffset(i)
			h, _ := hosts.GetString()
			u, _ := usage.GetInt32()
			fmt.Printf("%s %d\n", h, u)
		}
		fmt.Println(status)
	}
	// Output:
	// web-1 35
	// web-2 72
	// SUCCESS
	// db-1 18
	// SUCCESS_WITH_INFO
}

func ExampleStatement_GetColumn() {
	mock := odbctest.NewMockServer()
	defer mock.Close()
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL:     "SELECT note",
		Columns: []tsodbc.ColumnInfo{{Name: "note", Type: tsodbc.Type{ScalarType: tsodbc.ScalarVarchar}}},
		Rows:    [][]value.Value{{value.String("disk usage above threshold")}},
	})

	client, err := tsodbc.NewClient(mock.URL())
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	st := tsodbc.NewConnection(client.NewSession()).NewStatement()
	defer st.Close()
	if _, err := st.ExecDirect(context.Background(), "SELECT note"); err != nil {
		log.Fatal(err)
	}
	if _, err := st.FetchNextRow(); err != nil {
		log.Fatal(err)
	}

	// A small buffer receives the value in null-terminated pieces.
	buf := appbuf.New(appbuf.CChar, 11)
	for {
		res, err := st.GetColumn(1, buf)
		if err != nil {
			log.Fatal(err)
		}
		if res == appbuf.ConvNoData {
			break
		}
		part, _ := buf.GetString()
		fmt.Printf("%q\n", part)
	}
	// Output:
	// "disk usage"
	// " above thr"
	// "eshold"
}

func ExampleQueryOutcome_Drain() {
	mock := exampleService()
	defer mock.Close()

	client, err := tsodbc.NewClient(mock.URL())
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	qo, _, err := client.NewSession().Query(ctx, "SELECT host, usage FROM cpu")
	if err != nil {
		log.Fatal(err)
	}

	show := func(qo *tsodbc.QueryOutcome) error {
		for _, raw := range qo.Rows {
			vals, err := wire.DecodeRow(raw)
			if err != nil {
				return err
			}
			fmt.Println(value.Render(value.Row(vals...)))
		}
		return nil
	}
	if err := show(qo); err != nil {
		log.Fatal(err)
	}
	if err := qo.Drain(ctx, show); err != nil {
		log.Fatal(err)
	}
	// Output:
	// (web-1, 35)
	// (web-2, 72)
	// (db-1, 18)
}
