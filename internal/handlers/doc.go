// Package handlers implements the catalog operations run by the request pipeline.
//
// Each operation is a [pipeline.Handler] whose Validate phase returns the state its Execute
// phase consumes. Writes run in a single transaction opened through [repositories.Gateway.InTx].
//
// Operations:
//   - [FetchCourse] : course.fetch, course with its unit summary
//   - [MoveLesson] : lesson.move, moves a lesson and its children to another unit or course
//   - [ReorderLesson] : lesson.collections.reorder, resequences the collections of a lesson
//   - [DeleteLesson] : lesson.delete, soft-deletes a lesson and its children
package handlers
