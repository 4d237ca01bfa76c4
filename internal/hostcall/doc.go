/*
Package hostcall services requests that execution contexts send to the host.

A request payload is an object naming a method plus its parameters:

	{"method": "html.select", "html": "<p>a</p>", "selector": "p"}

Providers contribute methods to a Registry. Dispatch looks the method up,
runs it under the caller's context and records its duration. Failures
become error responses on the context side; they never fault the context.

# Methods

  - echo, now, sniff: core helpers
  - fetch: outbound HTTP, disabled unless configured with an allow-list
  - html.select, html.xpath, html.sanitize: HTML querying and cleaning
  - stats.describe, stats.quantile: descriptive statistics
  - hash.digest: sha256, sha3 and blake2b digests
  - codec.compress, codec.decompress: gzip and zstd

Binary parameters accept raw bytes or base64 strings; binary results are
returned base64-encoded so they survive the JSON stream unchanged.
*/
package hostcall
