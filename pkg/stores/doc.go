// Package stores persists validation reports to SQLite so past runs can be
// listed and compared. The schema is managed with embedded golang-migrate
// migrations; reports delete their rule outcomes via foreign key cascade.
package stores
