// package access decides whether a user may edit a course.
//
// Authorization is evaluated against the containing course only: its owner and its
// collaborator set. Nothing is cached between calls.
package access

import (
	"fmt"
	"strings"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/shared"
)

// Authorize reports whether userID is the owner or one of the collaborators.
// Comparisons ignore case.
func Authorize(ownerID string, collaborators []string, userID string) bool {
	if IsAnonymous(userID) {
		return false
	}
	if shared.SameID(ownerID, userID) {
		return true
	}
	return models.Collaborators(collaborators).Contains(userID)
}

// CanEdit applies [Authorize] to a course.
func CanEdit(course *models.Course, userID string) bool {
	if course == nil {
		return false
	}
	return Authorize(course.OwnerID, course.Collaborator, userID)
}

// Check returns [shared.ErrForbidden] when userID cannot edit course.
func Check(course *models.Course, userID string) error {
	if CanEdit(course, userID) {
		return nil
	}
	id := ""
	if course != nil {
		id = course.ID
	}
	return fmt.Errorf("%w: user %s on course %s", shared.ErrForbidden, userID, id)
}

// IsAnonymous reports whether userID is empty or the anonymous sentinel.
func IsAnonymous(userID string) bool {
	id := strings.TrimSpace(userID)
	return id == "" || strings.EqualFold(id, shared.Anonymous)
}
