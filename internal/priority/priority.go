// Package priority ranks booking requests. The score gates preemption, so it
// must be total and deterministic: identical inputs always yield the same
// score, and unknown roles or categories fall through to the lowest tier
// instead of failing.
package priority

import "facility-service/internal/models"

const (
	baseUniversityActivity = 6
	baseClass              = 5
	baseStaffMeeting       = 4
	baseChurchMeeting      = 3
	baseStudentMeeting     = 2
	baseOther              = 1
)

// Classify returns the priority score for a request. Higher outranks lower;
// equal scores never preempt each other (the incumbent keeps the slot).
func Classify(role models.Role, category models.BookingCategory) int {
	return categoryBase(category) + roleBonus(role)
}

func categoryBase(category models.BookingCategory) int {
	switch category {
	case models.CategoryUniversityActivity:
		return baseUniversityActivity
	case models.CategoryClass:
		return baseClass
	case models.CategoryStaffMeeting:
		return baseStaffMeeting
	case models.CategoryChurchMeeting:
		return baseChurchMeeting
	case models.CategoryStudentMeeting:
		return baseStudentMeeting
	default:
		return baseOther
	}
}

func roleBonus(role models.Role) int {
	switch role {
	case models.RoleAdmin:
		return 3
	case models.RoleStaff, models.RoleLecturer:
		return 2
	default:
		return 0
	}
}
