// Package storage persists movebot's state: routines and their triggers,
// the exercise catalog, user preferences, and the append-only activity
// log. The file driver needs no extra dependencies; sqlite is available
// behind a build tag for setups that want queryable history.
package storage
