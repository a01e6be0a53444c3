/*
Package metrics defines and registers the Prometheus metrics emitted by the
follower and appendlog packages: events applied, snapshots saved, gap-fill
reads, and append-coalescer batch/fallback counts. Metrics are registered
at package init against the default Prometheus registry; Handler exposes
them over HTTP for scraping.
*/
package metrics
