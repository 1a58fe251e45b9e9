// Package models defines the entities of the course catalog hierarchy.
//
// The hierarchy is strictly nested:
//
//	Course -> Unit -> Lesson -> Collection -> Content
//
// Every row embeds [Record] (id, owner, modifier, soft-delete flag, timestamps)
// and implements [Entity], whose Location method reports the parent chain the
// row claims. Rows are never physically removed; IsDeleted hides them from
// every validation path.
//
// Read models:
//   - [Position] : one (id, sequence_id) pair of a reorder request
//   - [CourseOutline] : a course with its live unit summary
package models
