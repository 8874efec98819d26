package auth

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/course-market/internal/store"
	"github.com/yourusername/course-market/internal/validate"
)

// User-facing validation messages. The first failing rule's message is
// the only one shown.
const (
	msgInvalidEmail      = "Enter a valid email"
	msgNoSuchUser        = "No user with this email exists"
	msgWrongPassword     = "Wrong password"
	msgEmailTaken        = "This email is already taken"
	msgPasswordMin       = "Password must be at least 6 characters"
	msgPasswordMax       = "Password must be at most 56 characters"
	msgPasswordCharset   = "Password must contain only latin letters and digits"
	msgPasswordsMismatch = "Passwords must match"
	msgNameMin           = "Name must be at least 2 characters"
	msgNameMax           = "Name must be at most 20 characters"
	msgTokenExpired      = "The reset link is invalid or has expired"
	msgGenericFailure    = "Something went wrong, try again later"
)

// errWrongPassword distinguishes a credential mismatch from the other
// validation failures; only mismatches count against the login lockout.
var errWrongPassword = errors.New(msgWrongPassword)

func passwordRules() []validate.Rule {
	return []validate.Rule{
		validate.MinLength(6, msgPasswordMin),
		validate.MaxLength(56, msgPasswordMax),
		validate.Alphanumeric(msgPasswordCharset),
	}
}

func (m *Manager) loginChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "lemail",
			Transform: validate.NormalizeEmail,
			Rules: []validate.Rule{
				validate.Email(msgInvalidEmail),
				m.emailExists(msgNoSuchUser),
			},
		},
		{
			Name:      "lpassword",
			Transform: strings.TrimSpace,
			Rules:     []validate.Rule{m.passwordMatches("lemail")},
		},
	}
}

func (m *Manager) registerChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "remail",
			Transform: validate.NormalizeEmail,
			Rules: []validate.Rule{
				validate.Email(msgInvalidEmail),
				m.emailAvailable(),
			},
		},
		{
			Name:      "rpassword",
			Transform: strings.TrimSpace,
			Rules:     passwordRules(),
		},
		{
			Name:      "rconfirm",
			Transform: strings.TrimSpace,
			Rules:     []validate.Rule{validate.MatchesField("rpassword", msgPasswordsMismatch)},
		},
		{
			Name:      "rname",
			Transform: strings.TrimSpace,
			Rules: []validate.Rule{
				validate.MinLength(2, msgNameMin),
				validate.MaxLength(20, msgNameMax),
			},
		},
	}
}

func (m *Manager) resetChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "email",
			Transform: validate.NormalizeEmail,
			Rules: []validate.Rule{
				validate.Email(msgInvalidEmail),
				m.emailExists(msgNoSuchUser),
			},
		},
	}
}

func (m *Manager) passwordChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "password",
			Transform: strings.TrimSpace,
			Rules:     append(passwordRules(), m.resetTokenAlive()),
		},
	}
}

// emailExists requires an account with the given email.
func (m *Manager) emailExists(message string) validate.Rule {
	return func(ctx context.Context, _ validate.Form, value string) error {
		_, err := m.users.FindByEmail(ctx, value)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errors.New(message)
			}
			m.logger.Printf("user lookup failed: %v", err)
			return errors.New(msgGenericFailure)
		}
		return nil
	}
}

// emailAvailable requires the email to be unregistered.
func (m *Manager) emailAvailable() validate.Rule {
	return func(ctx context.Context, _ validate.Form, value string) error {
		_, err := m.users.FindByEmail(ctx, value)
		if err == nil {
			return errors.New(msgEmailTaken)
		}
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Printf("user lookup failed: %v", err)
			return errors.New(msgGenericFailure)
		}
		return nil
	}
}

// passwordMatches compares the submitted password against the stored
// hash of the account named by the email field. A missing account is
// left to the email rule, which runs first.
func (m *Manager) passwordMatches(emailField string) validate.Rule {
	return func(ctx context.Context, form validate.Form, value string) error {
		user, err := m.users.FindByEmail(ctx, form.Value(emailField))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			m.logger.Printf("user lookup failed: %v", err)
			return errors.New(msgGenericFailure)
		}
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(value)) != nil {
			return errWrongPassword
		}
		return nil
	}
}

// resetTokenAlive re-resolves the (userId, token, expiry) triple from
// the hidden form fields. This is an independent check against replay or
// tampering; the render step is not trusted.
func (m *Manager) resetTokenAlive() validate.Rule {
	return func(ctx context.Context, form validate.Form, _ string) error {
		id, err := primitive.ObjectIDFromHex(form.Value("userId"))
		if err != nil {
			return errors.New(msgTokenExpired)
		}
		user, err := m.users.FindByResetToken(ctx, form.Value("token"), m.now())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errors.New(msgTokenExpired)
			}
			m.logger.Printf("reset token lookup failed: %v", err)
			return errors.New(msgGenericFailure)
		}
		if user.ID != id {
			return errors.New(msgTokenExpired)
		}
		return nil
	}
}
