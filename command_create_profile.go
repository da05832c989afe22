package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateProfileMessage seeds the application-owned profile row for a freshly
// registered identity.
type CreateProfileMessage struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone_number"`
}

func (e CreateProfileMessage) Type() string { return "profile.create" }

// CreateProfileHandler executes the best-effort profile creation. Callers on
// the signup path swallow the returned error by contract; the handler itself
// reports every failure so the outcome stays observable.
type CreateProfileHandler struct {
	Repo   ProfileManager
	Logger Logger
}

func (h *CreateProfileHandler) Execute(ctx context.Context, event CreateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateProfileHandler) execute(ctx context.Context, event CreateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := ProfileIDForUser(event.UserID)
	if err != nil {
		return err
	}

	phone := event.Phone
	if phone != "" {
		normalized, err := NormalizePhone(phone)
		if err != nil {
			// a bad phone never blocks the profile row
			h.logger().Warn("profile phone rejected: %v", err)
			phone = ""
		} else {
			phone = normalized
		}
	}

	err = h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile := &Profile{
			ID:          id,
			Email:       event.Email,
			FirstName:   event.FirstName,
			LastName:    event.LastName,
			CompanyName: event.CompanyName,
			Phone:       phone,
		}

		if _, err := h.Repo.Profiles().CreateProfileTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile creation transaction failed")
	}

	return nil
}

func (h *CreateProfileHandler) logger() Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return defLogger{}
}
