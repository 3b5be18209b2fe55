package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/logger"
)

// OrgHeader identifies the tenant on ingestion requests.
const OrgHeader = "X-Praetor-Org"

// BlockChecker reports whether an IP is currently blocked for an org.
type BlockChecker interface {
	IsBlocked(org, ip string) (bool, error)
}

// DefenseGate rejects requests from blocked source IPs before they reach
// any handler. Requests without an org header pass through; blocking is a
// per-tenant decision.
func DefenseGate(checker BlockChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		org := c.Get(OrgHeader)
		if org == "" {
			return c.Next()
		}

		blocked, err := checker.IsBlocked(org, c.IP())
		if err != nil {
			// Fail open: a broken block lookup must not take down ingestion.
			GetLogger(c).Error("Block lookup failed",
				logger.String("org", org),
				logger.String("ip", c.IP()),
				logger.Error(err))
			return c.Next()
		}
		if blocked {
			GetLogger(c).Warn("Request from blocked actor rejected",
				logger.String("org", org),
				logger.String("ip", c.IP()))
			return Forbidden(c, "source address is blocked")
		}
		return c.Next()
	}
}
