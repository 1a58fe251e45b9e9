package pipeline

import "net/http"

// Kind is the category of a [Response].
type Kind int

const (
	KindOK Kind = iota
	KindNoContent
	KindInvalidRequest
	KindForbidden
	KindNotFound
	KindValidationError
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNoContent:
		return "no_content"
	case KindInvalidRequest:
		return "invalid_request"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidationError:
		return "validation_error"
	case KindInternalError:
		return "internal_error"
	default:
		return ""
	}
}

// HTTPStatus maps the kind onto an HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindOK:
		return http.StatusOK
	case KindNoContent:
		return http.StatusNoContent
	case KindInvalidRequest, KindValidationError:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Response is the envelope every operation ends with.
type Response struct {
	Kind   Kind
	Body   any               // KindOK only
	Reason string            // human readable reason for error kinds
	Errors map[string]string // KindValidationError only
	Event  *Event            // set on successful mutations
}

// Payload returns the JSON document the transport writes for the response, or nil for no body.
func (r Response) Payload() any {
	switch r.Kind {
	case KindOK:
		return r.Body
	case KindNoContent:
		return nil
	case KindValidationError:
		return r.Errors
	case KindForbidden:
		if r.Reason == "" {
			return map[string]string{"message": "Forbidden"}
		}
	}

	if r.Reason == "" {
		return nil
	}
	return map[string]string{"message": r.Reason}
}

// Outcome is what a phase hands back to the processor.
type Outcome struct {
	Status   Status
	Response Response
}

// Next lets the pipeline move on to the following phase.
func Next() Outcome { return Outcome{Status: Continue} }

// OK completes the operation with a body.
func OK(body any) Outcome {
	return Outcome{Status: Successful, Response: Response{Kind: KindOK, Body: body}}
}

// NoContent completes the operation without a body. ev may be nil.
func NoContent(ev *Event) Outcome {
	return Outcome{Status: Successful, Response: Response{Kind: KindNoContent, Event: ev}}
}

func InvalidRequest(reason string) Outcome {
	return fail(Response{Kind: KindInvalidRequest, Reason: reason})
}

func Forbidden() Outcome {
	return fail(Response{Kind: KindForbidden})
}

func NotFound(reason string) Outcome {
	return fail(Response{Kind: KindNotFound, Reason: reason})
}

func ValidationError(errs map[string]string) Outcome {
	return fail(Response{Kind: KindValidationError, Errors: errs})
}

func InternalError(reason string) Outcome {
	return fail(Response{Kind: KindInternalError, Reason: reason})
}

func fail(r Response) Outcome { return Outcome{Status: Failed, Response: r} }
