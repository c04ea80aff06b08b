package store

// Bucket name constants, one per logical table.
var (
	bucketAccounts         = []byte("accounts")
	bucketBlocks           = []byte("blocks")
	bucketPending          = []byte("pending")
	bucketConfirmHeight    = []byte("confirmation_height")
	bucketUnchecked        = []byte("unchecked")
	bucketVote             = []byte("vote")
	bucketOnlineWeight     = []byte("online_weight")
	bucketPeers            = []byte("peers")
	bucketMeta             = []byte("meta")
)

var allBuckets = [][]byte{
	bucketAccounts,
	bucketBlocks,
	bucketPending,
	bucketConfirmHeight,
	bucketUnchecked,
	bucketVote,
	bucketOnlineWeight,
	bucketPeers,
	bucketMeta,
}

// Meta keys (within bucketMeta).
var (
	metaKeySchemaVersion = []byte("schema_version")
	metaKeyBlockCount    = []byte("block_count")
	metaKeyCementedCount = []byte("cemented_count")
	metaKeyAccountCount  = []byte("account_count")
	metaKeyUncheckedCount = []byte("unchecked_count")
)

// CurrentSchemaVersion is the highest schema version this code
// understands. Migrations v2 through v18 bring
// any older store up to this version.
const CurrentSchemaVersion uint32 = 18
