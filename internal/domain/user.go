/**
 * @description
 * Read-only user contact view. Profile CRUD lives outside this service; the
 * billing engine only needs enough contact data to address notifications.
 */

package domain

import "github.com/google/uuid"

// UserContact is the slice of a user profile the billing engine reads.
type UserContact struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
}
