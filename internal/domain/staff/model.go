package staff

import (
	"time"

	"github.com/google/uuid"
)

// User is a staff login account.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Clinician is the bookable identity appointments are assigned to.
type Clinician struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BackfillReport summarises a urologist backfill pass.
type BackfillReport struct {
	Scanned    int `json:"scanned"`
	Linked     int `json:"linked"`
	Unresolved int `json:"unresolved"`
}
