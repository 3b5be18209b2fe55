package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/model"
)

// orgParam returns the :org path parameter after charset validation, so a
// crafted org can never reach a storage key.
func orgParam(c *fiber.Ctx) (string, error) {
	org := c.Params("org")
	if err := model.ValidateOrg(org); err != nil {
		return "", err
	}
	return org, nil
}
