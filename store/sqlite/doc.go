// Package sqlite provides a SQLite-backed document catalog.
//
// It stores one row per document in a single table, which keeps a CLI
// installation self-contained: the default CATALOG_URL is sqlite://docrag.db.
//
// # Basic Usage
//
//	catalog, err := sqlite.NewSqliteCatalog(sqlite.SqliteOptions{
//		Path:      "./docrag.db",
//		TableName: "documents", // Optional table name
//	})
//	if err != nil {
//		return err
//	}
//	defer catalog.Close()
//
// The path ":memory:" opens a private in-memory database limited to one
// connection.
package sqlite
