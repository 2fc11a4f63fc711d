// Package fetch retrieves update manifests and app packages.
//
// http and https sources go through a shared pooled transport with a rate
// limiter and a per-host circuit breaker. Update manifests are fetched with
// go-retryablehttp, which retries transient transport failures on its own;
// packages are downloaded with resty and never retried here, the caller owns
// the download retry policy. file:// sources are read from the local
// filesystem, which is how preloaded and side-loaded apps are installed.
package fetch
