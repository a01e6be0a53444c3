/*
Package log wraps zerolog for structured logging across the follower and
appendlog packages: a global Logger initialized via Init, plus
component/key-scoped child loggers for per-activation and per-unit context.
*/
package log
