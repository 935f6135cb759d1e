package service

import (
	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

func requireClaims(claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return nil
}

// authorizeStudent allows managers, coordinators of the student's course and the student.
func authorizeStudent(claims *models.JWTClaims, student *models.Student) error {
	if err := requireClaims(claims); err != nil {
		return err
	}
	switch claims.Role {
	case models.RoleManager:
		return nil
	case models.RoleCoordinator:
		if claims.CourseID != "" && claims.CourseID == student.CourseID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "student belongs to another course")
	case models.RoleStudent:
		if claims.StudentID != "" && claims.StudentID == student.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "access to this student is not allowed")
}

// authorizeCourse allows managers and the coordinator of courseID.
func authorizeCourse(claims *models.JWTClaims, courseID, message string) error {
	if err := requireClaims(claims); err != nil {
		return err
	}
	switch claims.Role {
	case models.RoleManager:
		return nil
	case models.RoleCoordinator:
		if claims.CourseID != "" && claims.CourseID == courseID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, message)
}
