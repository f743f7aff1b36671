// Package gorm provides the SQL-backed UserStore. Identity-key
// uniqueness lives in database unique indexes, and find-or-create for
// external subjects is create-then-on-conflict-reread, so concurrent
// first logins for one subject can never yield two records.
//
// The sqlite driver is wired in cmd/whisperd; any gorm dialect works.
package gorm
