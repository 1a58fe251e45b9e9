// Package server provides HTTP routing and middleware for the course catalog API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally. Routes are registered as
// "METHOD /path/{wildcard}" patterns, so method filtering and path values come from the mux.
//
// # Routes
//
//	GET    /api/v1/courses/{course_id}                                       → course.fetch
//	PUT    /api/v1/courses/{course_id}/units/{unit_id}/lessons               → lesson.move
//	PUT    /api/v1/courses/{course_id}/units/{unit_id}/lessons/{lesson_id}/order → lesson.collections.reorder
//	DELETE /api/v1/courses/{course_id}/units/{unit_id}/lessons/{lesson_id}   → lesson.delete
//	GET    /healthz
//
// The caller is identified by the X-User-ID header. Response kinds map onto status codes through
// [pipeline.Kind.HTTPStatus]; validation errors carry a field to reason object.
//
// # Middleware
//
//   - [Recovery] converts panics into 500 responses
//   - [Logging] logs method, path, status and duration
//   - [RateLimiter] keeps one token bucket per user and host (golang.org/x/time/rate), drops idle
//     buckets and answers 429
package server
