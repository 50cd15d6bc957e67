// Package rest exposes the HTTP surface: auth, friendships, groups,
// notifications, and presence. Handlers translate between JSON and the
// domain services; authorization and state rules live in the services.
package rest

import (
	"errors"
	"net/http"

	"github.com/Danya2kk/diplomTMS/errs"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errInvalidID rejects non-numeric path parameters before hitting a service.
var errInvalidID = errs.E(errs.ErrMalformedInput, "invalid id")

// errNotFoundGroup masks secret groups from non-members.
var errNotFoundGroup = errs.E(errs.ErrNotFound, "group not found")

// writeErr maps a service error to its HTTP status and JSON body.
func writeErr(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": errs.Detail(err)})
}

// getProfileForAccount resolves the profile belonging to an account.
func getProfileForAccount(db *gorm.DB, accountID int64) (*model.Profile, error) {
	var p model.Profile
	err := db.Where("account_id = ?", accountID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.ErrNotFound, "no profile for this account")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
