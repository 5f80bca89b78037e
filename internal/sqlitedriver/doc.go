// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3". When built with CGO it uses go-sqlcipher, which provides
// SQLCipher encryption for transcript databases. Without CGO it falls back to
// the pure-Go modernc.org/sqlite driver, functional but unencrypted.
//
// Import this package for its side effects only:
//
//	import _ "github.com/swarmlabs/swarm/internal/sqlitedriver"
package sqlitedriver
