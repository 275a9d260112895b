// Package mysql serves proof documents from a SQL table. MySQL is the
// production dialect; SQLite shares the same queries for single node
// deployments and tests.
package mysql
