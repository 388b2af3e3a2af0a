package audio

import (
	"fmt"
	"time"

	"callrec/internal/domain"
)

// checkPlaybackGrant enforces that auth is live and covers every usage the
// loopback capture is restricted to.
func checkPlaybackGrant(auth *domain.Authorization, usages []domain.Usage, now time.Time) error {
	if err := auth.Valid(now); err != nil {
		return err
	}
	if len(usages) == 0 {
		return fmt.Errorf("%w: loopback capture needs at least one usage", domain.ErrAuthorization)
	}
	for _, u := range usages {
		if !auth.Permits(u) {
			return fmt.Errorf("%w: grant %s does not permit %s capture", domain.ErrAuthorization, auth.ID, u)
		}
	}
	return nil
}
