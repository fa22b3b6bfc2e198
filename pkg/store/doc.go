/*
Package store persists trained markov models in a SQLite database. It is the
serialization collaborator of the markov package: the in-memory engine owns
training and generation, while the store owns snapshots, JSON import/export
and housekeeping of the persisted matrices.

Multiple models can live in one database, keyed by name. Symbols are stored
as text, so the store works with markov.Model[string].
*/
package store
