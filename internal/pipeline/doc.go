// Package pipeline runs catalog operations through three strictly ordered phases.
//
//	Sanity   -> shape of the request, no data access
//	Validate -> existence, soft-delete, parent and authorization checks (reads only)
//	Execute  -> the mutation or read, inside its own transaction
//
// Each phase returns an [Outcome]. Anything other than [Continue] ends the run and its
// [Response] is returned as is, so Execute is never reached without two continues.
//
// Operations implement [Handler] with a state type S produced by Validate and handed to
// Execute. [Bind] erases S so a [Processor] can drive any handler, and a [Registry] maps
// operation names to handlers for the transport.
package pipeline
