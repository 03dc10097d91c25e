// Package store persists pipeline state in SQLite and exposes the claim,
// result, gate, and teardown queries every stage worker shares.
//
// The Store manages the database connection, schema migrations, per-stage
// result tables, the ingest inventory, and gate flags. There is no claim
// table: a stage claims work by selecting a random key that exists upstream
// but not in its own result table, and the uniqueness constraint on the
// result insert decides races. Losers see services.ErrContention and move on.
//
// Result rows are only ever removed by a cascading wipe, which deletes them
// in reverse dependency order through the Delete*Row helpers. The ingest
// inventory survives wipes so a wiped interview re-enters the decrypt queue.
//
// Schema changes are additive migration files under migrations/; applied
// versions are tracked in schema_migrations.
package store
