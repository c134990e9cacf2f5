// Package admin implements the operator console behind `reclutas admin`.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/storage"
	"github.com/reclutas/apiserver/types"
)

// Address is recorded as the origin of console actions.
const Address = "127.0.0.1"

var (
	ErrNotAdmin         = errors.New("administrator account required")
	ErrNotAuthenticated = errors.New("not authenticated")
)

type Accounts interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, input services.NewAccount) (types.Account, error)
	SetActive(ctx context.Context, id int, active bool) error
	ResetPassword(ctx context.Context, id int) (string, error)
	Delete(ctx context.Context, id int) error
}

type Credentials interface {
	VerifyPassword(ctx context.Context, email, plaintext string) (types.Account, error)
	SetPassword(ctx context.Context, accountID int, plaintext string) error
}

type Sessions interface {
	InvalidateAccount(ctx context.Context, accountID int) (int64, error)
}

type Auditor interface {
	Record(ctx context.Context, event services.AuditEvent)
	Recent(ctx context.Context, n int) ([]types.AuditEntry, error)
}

type Backups interface {
	Create(ctx context.Context) (string, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

// Console runs administrative actions on behalf of one authenticated
// administrator and prints results to out.
type Console struct {
	accounts    Accounts
	credentials Credentials
	sessions    Sessions
	audit       Auditor
	backups     Backups
	out         io.Writer

	actor     *types.Account
	bootstrap bool
}

// Deps are the services a console drives. Backups may be nil.
type Deps struct {
	Accounts    Accounts
	Credentials Credentials
	Sessions    Sessions
	Audit       Auditor
	Backups     Backups
}

func NewConsole(deps Deps, out io.Writer) *Console {
	return &Console{
		accounts:    deps.Accounts,
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		audit:       deps.Audit,
		backups:     deps.Backups,
		out:         out,
	}
}

// NeedsBootstrap reports whether no account exists yet. The first account
// can be created without authenticating and is always an administrator.
func (c *Console) NeedsBootstrap(ctx context.Context) (bool, error) {
	n, err := c.accounts.Count(ctx)
	if err != nil {
		return false, err
	}
	c.bootstrap = n == 0
	return c.bootstrap, nil
}

// Authenticate verifies an administrator through the credential store, so
// failed attempts count toward the lockout like any other login.
func (c *Console) Authenticate(ctx context.Context, email, password string) error {
	account, err := c.credentials.VerifyPassword(ctx, email, password)
	if err != nil {
		c.audit.Record(ctx, services.AuditEvent{
			Address: Address,
			Action:  services.ActionLoginFailed,
			Details: "admin console email=" + email,
		})
		return err
	}
	if !account.Admin {
		return ErrNotAdmin
	}
	c.actor = &account
	c.record(ctx, services.ActionLogin, "", "admin console")
	return nil
}

func (c *Console) authorized() error {
	if c.actor == nil {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Console) record(ctx context.Context, action string, entityID string, details string) {
	event := services.AuditEvent{
		Address: Address,
		Action:  action,
		Details: details,
	}
	if c.actor != nil {
		event.AccountID = services.AccountRef(c.actor.ID)
	}
	if entityID != "" {
		event.EntityType = "usuario"
		event.EntityID = entityID
	}
	c.audit.Record(ctx, event)
}

func (c *Console) lookup(ctx context.Context, email string) (types.Account, error) {
	account, err := c.accounts.GetByEmail(ctx, email)
	if errors.Is(err, services.ErrNotFound) {
		return types.Account{}, fmt.Errorf("no account with email %q", email)
	}
	return account, err
}

func (c *Console) ListUsers(ctx context.Context) error {
	if err := c.authorized(); err != nil {
		return err
	}
	accounts, err := c.accounts.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNOMBRE\tADMIN\tACTIVO\tBLOQUEADO\tULTIMO LOGIN")
	now := time.Now()
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Email, a.Name, yesNo(a.Admin), yesNo(a.Active), yesNo(a.LockedAt(now)), formatTime(a.LastLogin))
	}
	return w.Flush()
}

// CreateUser adds an account. During bootstrap it needs no administrator
// and the account is made an administrator.
func (c *Console) CreateUser(ctx context.Context, input services.NewAccount) (types.Account, error) {
	if !c.bootstrap {
		if err := c.authorized(); err != nil {
			return types.Account{}, err
		}
	} else {
		input.Admin = true
	}
	account, err := c.accounts.Create(ctx, input)
	if err != nil {
		return types.Account{}, err
	}
	if c.bootstrap {
		c.actor = &account
		c.bootstrap = false
	}
	c.record(ctx, services.ActionAccountCreated, strconv.Itoa(account.ID), "email="+account.Email)
	fmt.Fprintf(c.out, "created account %d (%s)\n", account.ID, account.Email)
	return account, nil
}

func (c *Console) DeleteUser(ctx context.Context, email string) error {
	if err := c.authorized(); err != nil {
		return err
	}
	account, err := c.lookup(ctx, email)
	if err != nil {
		return err
	}
	if account.ID == c.actor.ID {
		return errors.New("refusing to delete the account in use")
	}
	if err := c.accounts.Delete(ctx, account.ID); err != nil {
		return err
	}
	c.record(ctx, services.ActionAccountDeleted, strconv.Itoa(account.ID), "email="+account.Email)
	fmt.Fprintf(c.out, "deleted account %s\n", account.Email)
	return nil
}

// SetPassword replaces a password and ends the account's sessions.
func (c *Console) SetPassword(ctx context.Context, email, password string) error {
	if err := c.authorized(); err != nil {
		return err
	}
	account, err := c.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := c.credentials.SetPassword(ctx, account.ID, password); err != nil {
		return err
	}
	if _, err := c.sessions.InvalidateAccount(ctx, account.ID); err != nil {
		return err
	}
	c.record(ctx, services.ActionPasswordChanged, strconv.Itoa(account.ID), "set by administrator")
	fmt.Fprintf(c.out, "password updated for %s\n", account.Email)
	return nil
}

// ResetPassword generates a new password, clears any lockout and prints the
// password once.
func (c *Console) ResetPassword(ctx context.Context, email string) error {
	if err := c.authorized(); err != nil {
		return err
	}
	account, err := c.lookup(ctx, email)
	if err != nil {
		return err
	}
	password, err := c.accounts.ResetPassword(ctx, account.ID)
	if err != nil {
		return err
	}
	c.record(ctx, services.ActionPasswordReset, strconv.Itoa(account.ID), "")
	fmt.Fprintf(c.out, "new password for %s: %s\n", account.Email, password)
	return nil
}

func (c *Console) SetActive(ctx context.Context, email string, active bool) error {
	if err := c.authorized(); err != nil {
		return err
	}
	account, err := c.lookup(ctx, email)
	if err != nil {
		return err
	}
	if !active && account.ID == c.actor.ID {
		return errors.New("refusing to deactivate the account in use")
	}
	if err := c.accounts.SetActive(ctx, account.ID, active); err != nil {
		return err
	}
	action, verb := services.ActionAccountActivated, "activated"
	if !active {
		action, verb = services.ActionAccountDisabled, "deactivated"
	}
	c.record(ctx, action, strconv.Itoa(account.ID), "")
	fmt.Fprintf(c.out, "%s %s\n", verb, account.Email)
	return nil
}

// Logs prints the n most recent audit entries, newest first.
func (c *Console) Logs(ctx context.Context, n int) error {
	if err := c.authorized(); err != nil {
		return err
	}
	entries, err := c.audit.Recent(ctx, n)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FECHA\tUSUARIO\tIP\tACCION\tENTIDAD\tDETALLES")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			optionalInt(e.AccountID), e.Address, e.Action, entity(e), deref(e.Details))
	}
	return w.Flush()
}

func (c *Console) Backup(ctx context.Context) error {
	if err := c.authorized(); err != nil {
		return err
	}
	if c.backups == nil {
		return errors.New("object storage is not configured")
	}
	key, err := c.backups.Create(ctx)
	if err != nil {
		return err
	}
	c.record(ctx, services.ActionBackupCreated, "", key)
	fmt.Fprintf(c.out, "backup written to %s\n", key)
	return nil
}

func (c *Console) ListBackups(ctx context.Context) error {
	if err := c.authorized(); err != nil {
		return err
	}
	if c.backups == nil {
		return errors.New("object storage is not configured")
	}
	objects, err := c.backups.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tFECHA")
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "si"
	}
	return "no"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func entity(e types.AuditEntry) string {
	if e.EntityType == nil {
		return "-"
	}
	parts := []string{*e.EntityType}
	if e.EntityID != nil {
		parts = append(parts, *e.EntityID)
	}
	return strings.Join(parts, "/")
}
