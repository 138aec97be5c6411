package cart

// FallbackPolicy decides what happens when the authorized cart route answers
// 403. Retrying against the backend's non-production /dev/cart route keeps
// demos working without full role wiring; the policy is injected so
// production builds can turn it off.
type FallbackPolicy interface {
	// FallbackEmail returns the test identity to route /dev/cart requests
	// through, and whether falling back is allowed at all.
	FallbackEmail() (string, bool)
}

// NoFallback is the production policy: a 403 stays a 403.
type NoFallback struct{}

func (NoFallback) FallbackEmail() (string, bool) {
	return "", false
}

// DevFallback retries forbidden cart requests against the backend's
// unauthenticated /dev/cart/{email} routes. Strictly a demo/test escape
// hatch; never enable it in a production build.
type DevFallback struct {
	Email string
}

// DefaultDevEmail matches the test identity the backend seeds for its dev
// cart routes.
const DefaultDevEmail = "test@buyer.com"

func (f DevFallback) FallbackEmail() (string, bool) {
	email := f.Email
	if email == "" {
		email = DefaultDevEmail
	}

	return email, true
}
