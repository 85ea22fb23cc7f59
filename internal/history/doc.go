// Package history keeps a SQLite journal of pipeline runs and the steps each
// run executed.
//
// A run row is opened before any work starts and closed with its outcome; step
// rows carry the stage, boundary, field and tool command line so a failed run
// can be traced to the call that stopped it. Schema changes bump the version
// in schema.go; users delete the database to adopt the new schema.
package history
