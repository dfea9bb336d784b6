package constants

// Redis key formats. Naming convention: app:{module}:{entity}:{id}.
const (
	appPrefix = "app"

	// KeyEmbeddingCache stores one cached vector (STRING, JSON payload).
	// Format: app:embed:vector:{model_version}:{content_sha256}
	KeyEmbeddingCache = appPrefix + ":embed:vector:%s:%s"

	// KeyUploadMD5Set is the dedup set of raw-file MD5s (SET).
	KeyUploadMD5Set = appPrefix + ":file:dedup_set"

	// KeyMatchLock guards one (resume, job) pair while a run is in flight
	// (STRING with TTL). Format: app:match:lock:{resume_id}:{job_id}
	KeyMatchLock = appPrefix + ":match:lock:%s:%s"

	// KeyUserRateWindow counts pipeline operations per user per window
	// (STRING counter with TTL). Format: app:rate:user:{user_id}
	KeyUserRateWindow = appPrefix + ":rate:user:%s"
)
