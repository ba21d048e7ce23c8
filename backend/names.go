package backend

// Well-known registry names for the three backends this module ships,
// mirroring field.Backend* so the field and backend packages agree on
// naming without either importing the other.
const (
	NameSurrealDB  = "surrealdb"
	NameClickHouse = "clickhouse"
	NameKV         = "kv"
)
