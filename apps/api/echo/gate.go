package echoapi

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"io/ioutil"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/token"
)

// AuthMode selects how the gate identifies the caller.
type AuthMode int

const (
	// ModeBearer requires a session token in the Authorization header.
	ModeBearer AuthMode = iota + 1
	// ModeSystemAdmin requires the static system admin credentials in the query string or JSON body.
	ModeSystemAdmin
	// ModeFlexible tries ModeBearer, then ModeSystemAdmin.
	ModeFlexible
)

func (m AuthMode) String() string {
	switch m {
	case ModeBearer:
		return "bearer"
	case ModeSystemAdmin:
		return "sysadmin"
	case ModeFlexible:
		return "flexible"
	}
	return "unknown"
}

type PrincipalKind int

const (
	KindAccount PrincipalKind = iota + 1
	KindSystemAdmin
)

const (
	contextPrincipalKey = "principal"
	sysAdminUsernameKey = "sysAdminUsername"
	sysAdminPasswordKey = "sysAdminPassword"
	maxSniffedBodySize  = 1 << 20
)

var (
	errMissingToken          = echo.NewHTTPError(401, "missing or malformed token")
	errInvalidToken          = echo.NewHTTPError(403, "invalid or expired token")
	errInvalidSysAdminCreds  = echo.NewHTTPError(401, "invalid system admin credentials")
	errAuthenticationNeeded  = echo.NewHTTPError(401, "authentication required")
	errPrincipalNotInContext = errors.New("principal not found in echo.Context")
)

type (
	// Principal is the authenticated caller: an account (with its session claims) or the system admin.
	Principal struct {
		Kind   PrincipalKind
		Claims *token.Claims // nil for the system admin

		// Profile is the active profile that satisfied the route capability, if it named profile types.
		Profile *account.Profile
	}

	// Capability is what a route requires from its Principal.
	Capability struct {
		Kinds        []PrincipalKind       // allowed principal kinds, any if empty
		ProfileTypes []account.ProfileType // an account principal must own an active profile of one of them
	}

	sysAdminCredentials struct {
		Username string `json:"sysAdminUsername"`
		Password string `json:"sysAdminPassword"`
	}

	gate struct {
		tokens   *token.Service
		accounts *account.Service
		conf     *core.Config
		metrics  *metrics
	}
)

func (p Principal) IsSystemAdmin() bool { return p.Kind == KindSystemAdmin }

// ProfileID returns the ID of the profile acting for the principal, nil for the system admin.
func (p Principal) ProfileID() *string {
	if p.Profile == nil {
		return nil
	}
	id := p.Profile.ID
	return &id
}

// LogPerson identifies the principal in logs.
func (p Principal) LogPerson() core.LogPerson {
	if p.Claims == nil {
		return core.LogPerson{ID: "sysadmin"}
	}
	return core.LogPerson{ID: p.Claims.AccountID, Email: p.Claims.Email}
}

// anyPrincipal is satisfied by every authenticated caller.
var anyPrincipal = Capability{}

// staffAdmin is satisfied by the system admin and by accounts owning an active admin or manager profile.
var staffAdmin = Capability{ProfileTypes: []account.ProfileType{account.TypeAdmin, account.TypeManager}}

// accountAdmin is satisfied by the system admin and by accounts owning an active admin profile.
var accountAdmin = Capability{ProfileTypes: []account.ProfileType{account.TypeAdmin}}

// require authenticates the caller with mode and checks cap once, then attaches the Principal to the context.
func (g *gate) require(mode AuthMode, cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := g.authenticate(ctx, mode)
			if err != nil {
				g.metrics.authFailures.WithLabelValues(mode.String()).Inc()
				return err
			}
			if err = g.authorize(ctx, &p, cap); err != nil {
				return err
			}
			ctx.Set(contextPrincipalKey, p)
			return next(ctx)
		}
	}
}

func (g *gate) authenticate(ctx echo.Context, mode AuthMode) (Principal, error) {
	switch mode {
	case ModeBearer:
		return g.bearer(ctx)
	case ModeSystemAdmin:
		return g.systemAdmin(ctx)
	default:
		// never tell which of the two failed
		if p, err := g.bearer(ctx); err == nil {
			return p, nil
		}
		if p, err := g.systemAdmin(ctx); err == nil {
			return p, nil
		}
		return Principal{}, errAuthenticationNeeded
	}
}

func (g *gate) bearer(ctx echo.Context) (Principal, error) {
	parts := strings.SplitN(ctx.Request().Header.Get(echo.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return Principal{}, errMissingToken
	}

	claims, err := g.tokens.VerifySession(strings.TrimSpace(parts[1]))
	if err != nil {
		return Principal{}, &echo.HTTPError{Code: errInvalidToken.Code, Message: errInvalidToken.Message, Internal: err}
	}
	return Principal{Kind: KindAccount, Claims: claims}, nil
}

func (g *gate) systemAdmin(ctx echo.Context) (Principal, error) {
	creds, err := sniffSysAdminCredentials(ctx)
	if err != nil {
		return Principal{}, errors.Wrap(err, "reading system admin credentials")
	}

	// compare both values every time
	userOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(g.conf.Auth.SysAdminUsername))
	pwdOK := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(g.conf.Auth.SysAdminPassword))
	if creds.Username == "" || creds.Password == "" || userOK&pwdOK != 1 {
		return Principal{}, errInvalidSysAdminCreds
	}
	return Principal{Kind: KindSystemAdmin}, nil
}

func (g *gate) authorize(ctx echo.Context, p *Principal, cap Capability) error {
	if len(cap.Kinds) > 0 {
		allowed := false
		for _, k := range cap.Kinds {
			if p.Kind == k {
				allowed = true
				break
			}
		}
		if !allowed {
			return errHttpForbidden
		}
	}

	if len(cap.ProfileTypes) == 0 || p.IsSystemAdmin() {
		return nil
	}

	profiles, err := g.accounts.QueryProfiles(ctx.Request().Context(), p.Claims.AccountID)
	if err != nil {
		return errors.Wrap(err, "querying principal profiles")
	}
	var acting []account.Profile
	for _, prof := range profiles {
		if account.HasActiveProfile([]account.Profile{prof}, cap.ProfileTypes...) {
			acting = append(acting, prof)
		}
	}
	if len(acting) == 0 {
		return errHttpForbidden
	}
	p.Profile = account.PrimaryProfile(acting)
	return nil
}

// sniffSysAdminCredentials reads the credentials from the query string, else from a JSON body.
// The body is restored so that handlers can still bind it.
func sniffSysAdminCredentials(ctx echo.Context) (sysAdminCredentials, error) {
	creds := sysAdminCredentials{
		Username: ctx.QueryParam(sysAdminUsernameKey),
		Password: ctx.QueryParam(sysAdminPasswordKey),
	}
	if creds.Username != "" || creds.Password != "" {
		return creds, nil
	}

	req := ctx.Request()
	if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return creds, nil
	}
	body, err := ioutil.ReadAll(io.LimitReader(req.Body, maxSniffedBodySize))
	if err != nil {
		return creds, err
	}
	_ = req.Body.Close()
	req.Body = ioutil.NopCloser(bytes.NewReader(body))

	// not a JSON object: no credentials
	_ = json.Unmarshal(body, &creds)
	return creds, nil
}

func getContextPrincipal(ctx echo.Context) (Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(Principal); ok {
		return p, nil
	}
	return Principal{}, errPrincipalNotInContext
}
