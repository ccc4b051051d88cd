package duckdb

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/parquetsql/parquetsql/internal/query"
)

func TestLoadParquetAndQuery(t *testing.T) {
	parquetBytes, err := buildParquet([]row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	path := writeTestFile(t, t.TempDir(), "my-events.parquet", parquetBytes)

	adapter := openTestAdapter(t, Options{})
	table, err := adapter.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if table != "my_events" {
		t.Fatalf("LoadFile() table = %q, want my_events", table)
	}

	result := adapter.Execute(context.Background(), `SELECT id, value FROM my_events ORDER BY id`)
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	if !slices.Equal(result.Columns, []string{"id", "value"}) {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if result.TotalRows != 2 || len(result.Rows) != 2 {
		t.Fatalf("TotalRows = %d, rows = %d", result.TotalRows, len(result.Rows))
	}
	if !result.Rows[0][0].Equal(query.Int64(1)) || !result.Rows[1][1].Equal(query.Text("b")) {
		t.Fatalf("Rows = %v", result.Rows)
	}

	files := adapter.Files()
	if len(files) != 1 {
		t.Fatalf("Files() = %v", files)
	}
	if files[0].Format != FormatParquet || files[0].RowCount != 2 {
		t.Fatalf("Files()[0] = %+v", files[0])
	}
	if !slices.Equal(files[0].Columns, []string{"id", "value"}) {
		t.Fatalf("Files()[0].Columns = %v", files[0].Columns)
	}
}

func TestLoadDelimitedFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeTestFile(t, dir, "orders.csv", []byte("order_id,amount\n1,10.5\n2,20.25\n3,7\n"))
	tsvPath := writeTestFile(t, dir, "users.TSV", []byte("user_id\tname\n1\talice\n2\tbob\n"))

	adapter := openTestAdapter(t, Options{})
	for _, path := range []string{csvPath, tsvPath} {
		if _, err := adapter.LoadFile(context.Background(), path); err != nil {
			t.Fatalf("LoadFile(%s) error = %v", path, err)
		}
	}

	result := adapter.Execute(context.Background(), `SELECT COUNT(*) AS c FROM orders`)
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	if !result.Rows[0][0].Equal(query.Int64(3)) {
		t.Fatalf("count = %v", result.Rows[0][0])
	}

	result = adapter.Execute(context.Background(), `SELECT name FROM users ORDER BY user_id`)
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	if !result.Rows[1][0].Equal(query.Text("bob")) {
		t.Fatalf("name = %v", result.Rows[1][0])
	}

	if got := adapter.LastLoadedTable(); got != "users" {
		t.Fatalf("LastLoadedTable() = %q", got)
	}
	files := adapter.Files()
	if len(files) != 2 || files[1].Format != FormatTSV || files[1].RowCount != 2 {
		t.Fatalf("Files() = %+v", files)
	}
	if !slices.Equal(files[0].Columns, []string{"order_id", "amount"}) {
		t.Fatalf("Files()[0].Columns = %v", files[0].Columns)
	}
}

func TestLoadFileIsIdempotent(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "orders.csv", []byte("order_id\n1\n"))
	adapter := openTestAdapter(t, Options{})

	for i := 0; i < 2; i++ {
		if _, err := adapter.LoadFile(context.Background(), path); err != nil {
			t.Fatalf("LoadFile() #%d error = %v", i, err)
		}
	}
	if got := adapter.LoadedTables(); !slices.Equal(got, []string{"orders"}) {
		t.Fatalf("LoadedTables() = %v", got)
	}
	tables, err := adapter.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if !slices.Equal(tables, []string{"orders"}) {
		t.Fatalf("ListTables() = %v", tables)
	}
}

func TestListTablesIsSorted(t *testing.T) {
	dir := t.TempDir()
	adapter := openTestAdapter(t, Options{})
	for _, name := range []string{"zeta.csv", "alpha.csv", "mid.csv"} {
		path := writeTestFile(t, dir, name, []byte("x\n1\n"))
		if _, err := adapter.LoadFile(context.Background(), path); err != nil {
			t.Fatalf("LoadFile(%s) error = %v", name, err)
		}
	}
	tables, err := adapter.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if !slices.Equal(tables, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("ListTables() = %v", tables)
	}
	if !slices.Equal(adapter.LoadedTables(), []string{"zeta", "alpha", "mid"}) {
		t.Fatalf("LoadedTables() = %v", adapter.LoadedTables())
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	adapter := openTestAdapter(t, Options{})

	_, err := adapter.LoadFile(context.Background(), filepath.Join(dir, "missing.parquet"))
	if !query.IsKind(err, query.LoadFailed) || !strings.Contains(err.Error(), "file does not exist") {
		t.Fatalf("LoadFile(missing) error = %v", err)
	}

	notes := writeTestFile(t, dir, "notes.txt", []byte("hello"))
	_, err = adapter.LoadFile(context.Background(), notes)
	if !query.IsKind(err, query.LoadFailed) || !strings.Contains(err.Error(), "unsupported file type") {
		t.Fatalf("LoadFile(txt) error = %v", err)
	}

	corrupt := writeTestFile(t, dir, "broken.parquet", []byte("not a parquet file"))
	_, err = adapter.LoadFile(context.Background(), corrupt)
	if !query.IsKind(err, query.LoadFailed) {
		t.Fatalf("LoadFile(corrupt) error = %v", err)
	}
	if len(adapter.LoadedTables()) != 0 {
		t.Fatalf("LoadedTables() = %v, want none", adapter.LoadedTables())
	}
}

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"/data/sales-2024.q1.parquet": "sales_2024_q1",
		"/data/2024.csv":              "table_2024",
		"/data/.csv":                  "table_",
		"/data/données.tsv":           "donn_es",
		"relative/Orders_V2.CSV":      "Orders_V2",
	}
	for path, want := range cases {
		if got := TableName(path); got != want {
			t.Fatalf("TableName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExecuteRejectsEmptyAndReportsErrors(t *testing.T) {
	adapter := openTestAdapter(t, Options{})

	result := adapter.Execute(context.Background(), "  \n\t ")
	if result.Success || result.Error != "query is empty" {
		t.Fatalf("Execute(empty) = %+v", result)
	}

	result = adapter.Execute(context.Background(), "SELECT * FROM nowhere")
	if result.Success {
		t.Fatal("Execute(missing table) succeeded")
	}
	if !strings.HasPrefix(result.Error, "query error: ") {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestExecuteConvertsNativeTypes(t *testing.T) {
	adapter := openTestAdapter(t, Options{})
	result := adapter.Execute(context.Background(), `SELECT
		NULL AS n,
		TRUE AS b,
		42::INTEGER AS i,
		18446744073709551615::UBIGINT AS big_u,
		1.5::DOUBLE AS d,
		12.34::DECIMAL(10,2) AS dec,
		'hello' AS s,
		TIMESTAMP '2024-01-02 03:04:05' AS ts,
		INTERVAL 2 DAY AS iv,
		170141183460469231731687303715884105727::HUGEINT AS huge,
		[1, 2, 3] AS list,
		'a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11'::UUID AS id,
		TIME '10:00:00' AS t,
		TIME '23:59:58.25' AS tf`)
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	cells := result.Rows[0]
	if !cells[0].IsNull() {
		t.Fatalf("n = %v", cells[0])
	}
	if !cells[1].Equal(query.Bool(true)) {
		t.Fatalf("b = %v", cells[1])
	}
	if !cells[2].Equal(query.Int64(42)) {
		t.Fatalf("i = %v", cells[2])
	}
	if !cells[3].Equal(query.Text("18446744073709551615")) {
		t.Fatalf("big_u = %v", cells[3])
	}
	if !cells[4].Equal(query.Double(1.5)) {
		t.Fatalf("d = %v", cells[4])
	}
	if dec, ok := cells[5].AsDouble(); !ok || math.Abs(dec-12.34) > 1e-9 {
		t.Fatalf("dec = %v", cells[5])
	}
	if !cells[6].Equal(query.Text("hello")) {
		t.Fatalf("s = %v", cells[6])
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if ts, ok := cells[7].AsDateTime(); !ok || !ts.Equal(want) {
		t.Fatalf("ts = %v", cells[7])
	}
	if !cells[8].Equal(query.Text("2 days")) {
		t.Fatalf("iv = %v", cells[8])
	}
	if !cells[9].Equal(query.Text("170141183460469231731687303715884105727")) {
		t.Fatalf("huge = %v", cells[9])
	}
	if cells[10].Kind() != query.KindText {
		t.Fatalf("list kind = %v", cells[10].Kind())
	}
	if !cells[11].Equal(query.Text("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")) {
		t.Fatalf("id = %v", cells[11])
	}
	if !cells[12].Equal(query.Text("10:00:00")) || !cells[13].Equal(query.Text("23:59:58.25")) {
		t.Fatalf("time of day = %v, %v", cells[12], cells[13])
	}
}

func TestConvertCellTimeOfDay(t *testing.T) {
	clock := time.Date(1, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		databaseType string
		want         query.CellValue
	}{
		{"TIME", query.Text("10:00:00")},
		{"time", query.Text("10:00:00")},
		{"TIMETZ", query.Text("10:00:00Z")},
		{"TIMESTAMP", query.DateTime(clock)},
		{"DATE", query.DateTime(clock)},
	}
	for _, tc := range cases {
		cell, err := convertCell(clock, tc.databaseType)
		if err != nil {
			t.Fatalf("convertCell(%s) error = %v", tc.databaseType, err)
		}
		if !cell.Equal(tc.want) {
			t.Fatalf("convertCell(%s) = %v, want %v", tc.databaseType, cell, tc.want)
		}
	}
}

func TestCloseReportsNotConnected(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "orders.csv", []byte("order_id\n1\n"))
	adapter := openTestAdapter(t, Options{})
	if err := adapter.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	result := adapter.Execute(context.Background(), "SELECT 1")
	if result.Success || result.Error != "query error: not connected" {
		t.Fatalf("Execute() after close = %+v", result)
	}
	if _, err := adapter.LoadFile(context.Background(), path); !query.IsKind(err, query.NotConnected) {
		t.Fatalf("LoadFile() after close error = %v", err)
	}
	if _, err := adapter.ListTables(context.Background()); !query.IsKind(err, query.NotConnected) {
		t.Fatalf("ListTables() after close error = %v", err)
	}
	if adapter.Interrupt() {
		t.Fatal("Interrupt() after close = true")
	}
}

func TestOpenFailsForUnreachablePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.DiskPath = filepath.Join(t.TempDir(), "missing", "dir", "session.duckdb")
	_, err := Open(context.Background(), cfg, Options{})
	if !query.IsKind(err, query.InitFailed) {
		t.Fatalf("Open() error = %v, want InitFailed", err)
	}
}

func TestLoadFromObjectStore(t *testing.T) {
	store := newMemoryStore()
	store.objects["raw/orders.csv"] = []byte("order_id,amount\n1,5\n2,6\n")
	adapter := openTestAdapter(t, Options{Store: store})

	table, err := adapter.LoadFile(context.Background(), "s3://datasets/raw/orders.csv")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if table != "orders" {
		t.Fatalf("table = %q", table)
	}
	result := adapter.Execute(context.Background(), "SELECT SUM(amount) FROM orders")
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	if files := adapter.Files(); files[0].Path != "s3://datasets/raw/orders.csv" {
		t.Fatalf("Files()[0].Path = %q", files[0].Path)
	}
	if _, err := adapter.LoadFile(context.Background(), "s3://datasets/raw/orders.csv"); err != nil {
		t.Fatalf("LoadFile(again) error = %v", err)
	}
	if store.downloads != 1 {
		t.Fatalf("downloads = %d, want staged copy reused", store.downloads)
	}

	if _, err := adapter.LoadFile(context.Background(), "s3://datasets/raw/missing.csv"); !query.IsKind(err, query.LoadFailed) {
		t.Fatalf("LoadFile(missing object) error = %v", err)
	}
	if _, err := adapter.LoadFile(context.Background(), "s3://other-bucket/raw/orders.csv"); !query.IsKind(err, query.LoadFailed) {
		t.Fatalf("LoadFile(other bucket) error = %v", err)
	}
}

func TestLoadRemoteWithoutStoreFails(t *testing.T) {
	adapter := openTestAdapter(t, Options{})
	_, err := adapter.LoadFile(context.Background(), "s3://datasets/raw/orders.csv")
	if !query.IsKind(err, query.LoadFailed) {
		t.Fatalf("LoadFile() error = %v", err)
	}
}

func TestExportFormats(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "orders.csv", []byte("order_id,amount\n1,5\n2,6\n"))
	store := newMemoryStore()
	adapter := openTestAdapter(t, Options{Store: store})
	if _, err := adapter.LoadFile(context.Background(), path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	parquetPath := filepath.Join(dir, "out.parquet")
	if err := adapter.Export(context.Background(), "SELECT * FROM orders;", parquetPath); err != nil {
		t.Fatalf("Export(parquet) error = %v", err)
	}
	rows, columns, err := inspectParquet(parquetPath)
	if err != nil {
		t.Fatalf("inspectParquet() error = %v", err)
	}
	if rows != 2 || !slices.Equal(columns, []string{"order_id", "amount"}) {
		t.Fatalf("exported parquet rows=%d columns=%v", rows, columns)
	}

	tsvPath := filepath.Join(dir, "out.tsv")
	if err := adapter.Export(context.Background(), "SELECT * FROM orders ORDER BY order_id", tsvPath); err != nil {
		t.Fatalf("Export(tsv) error = %v", err)
	}
	content, err := os.ReadFile(tsvPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(content), "order_id\tamount\n") {
		t.Fatalf("tsv content = %q", string(content))
	}

	if err := adapter.Export(context.Background(), "SELECT * FROM orders", "s3://datasets/exports/orders.csv"); err != nil {
		t.Fatalf("Export(s3) error = %v", err)
	}
	if payload := store.objects["exports/orders.csv"]; !strings.HasPrefix(string(payload), "order_id,amount") {
		t.Fatalf("uploaded payload = %q", string(payload))
	}

	if err := adapter.Export(context.Background(), "SELECT 1", filepath.Join(dir, "out.json")); err == nil {
		t.Fatal("Export(json) expected error")
	}
	if err := adapter.Export(context.Background(), " ; ", filepath.Join(dir, "x.csv")); err == nil {
		t.Fatal("Export(empty) expected error")
	}
}
