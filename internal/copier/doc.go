// Package copier fans rendered maps and their data files out into one
// directory per boundary.
//
// Two patterns drive it. The discover pattern names one file per boundary and
// carries a {boundary} placeholder; the distinct placeholder values found on
// disk become the boundary set. The source pattern is a glob that also
// carries {boundary}; for each target and boundary it is expanded with the
// target's extension and every match is copied into {root}/{target}/{boundary}/
// under its original name.
package copier
