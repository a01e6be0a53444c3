/*
Package transport is a demo-only stand-in for the hosting virtual-actor
platform that the runtime's core explicitly does not implement: placement,
mailbox delivery, and activation/deactivation triggers. Dispatcher and its
in-process implementation exist purely so cmd/follower-demo has something
concrete to drive the follower and appendlog packages through; none of it
is part of the reusable core or is expected to satisfy any production
correctness guarantee beyond demonstrating the lifecycle end to end.
*/
package transport
