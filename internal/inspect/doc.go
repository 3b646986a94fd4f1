// Package inspect serves a read-mostly HTTP view of a live task graph.
//
// Routes:
//
//	GET  /tasks                  all tasks with their aggregation state
//	GET  /tasks/{id}             one task
//	GET  /tasks/{id}/summary     the task's aggregate (promotes it to a root)
//	GET  /tasks/{id}/active      whether a root with a root type covers it
//	POST /tasks/{id}/state       {"state": "done"} changes the task's state
//	GET  /scheduled              takes the queued dirty tasks
//	GET  /workspace              totals over all roots
//	GET  /graph.dot              the aggregation structure as Graphviz DOT
//
// Task ids usually contain '#', which must be escaped as %23 in paths.
package inspect
